package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/slok/meshforge/internal/model"
)

const (
	imageFieldPrefix = "image_"
	maxFieldBytes    = 64 * 1024
	sniffBytes       = 512
	// formOverheadBytes is the body allowance on top of the images.
	formOverheadBytes = 1024 * 1024
)

var errBodyTooLarge = errors.New("request body too large")

// maxBodyBytes returns the request body cap. One image more than allowed fits so
// the validation can report it.
func maxBodyBytes(limits model.GenerationLimits) int64 {
	return int64(limits.MaxImages+1)*(limits.MaxImageSizeBytes+1) + formOverheadBytes
}

// parseGenerationForm reads a generation request from a multipart or url encoded
// form. Image contents are read to get their size and sniff their type, then
// discarded. Images are taken from the contiguous image_0, image_1... fields,
// stopping at the first missing index.
func parseGenerationForm(w http.ResponseWriter, r *http.Request, limits model.GenerationLimits) (model.GenerationRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes(limits))

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return model.GenerationRequest{}, &model.ValidationError{Message: "invalid input parameters", Details: []string{"content type must be multipart/form-data or application/x-www-form-urlencoded"}}
	}

	switch mediaType {
	case "multipart/form-data":
		return parseMultipart(r)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return model.GenerationRequest{}, formError(err)
		}
		return model.GenerationRequest{
			Type:    model.GenerationType(strings.TrimSpace(r.PostForm.Get("type"))),
			Prompt:  r.PostForm.Get("prompt"),
			Quality: model.Quality(strings.TrimSpace(r.PostForm.Get("quality"))),
		}, nil
	default:
		return model.GenerationRequest{}, &model.ValidationError{Message: "invalid input parameters", Details: []string{fmt.Sprintf("content type %q is not supported", mediaType)}}
	}
}

func parseMultipart(r *http.Request) (model.GenerationRequest, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return model.GenerationRequest{}, formError(err)
	}

	req := model.GenerationRequest{}
	images := map[int]model.ImageInput{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.GenerationRequest{}, formError(err)
		}

		name := part.FormName()
		switch {
		case name == "type":
			v, err := readField(part)
			if err != nil {
				return model.GenerationRequest{}, err
			}
			req.Type = model.GenerationType(strings.TrimSpace(v))
		case name == "prompt":
			v, err := readField(part)
			if err != nil {
				return model.GenerationRequest{}, err
			}
			req.Prompt = v
		case name == "quality":
			v, err := readField(part)
			if err != nil {
				return model.GenerationRequest{}, err
			}
			req.Quality = model.Quality(strings.TrimSpace(v))
		case strings.HasPrefix(name, imageFieldPrefix):
			idx, err := strconv.Atoi(strings.TrimPrefix(name, imageFieldPrefix))
			if err != nil || idx < 0 {
				_, _ = io.Copy(io.Discard, part)
				continue
			}
			img, err := readImage(name, part)
			if err != nil {
				return model.GenerationRequest{}, err
			}
			images[idx] = img
		default:
			_, _ = io.Copy(io.Discard, part)
		}
		part.Close()
	}

	for i := 0; ; i++ {
		img, ok := images[i]
		if !ok {
			break
		}
		req.Images = append(req.Images, img)
	}

	return req, nil
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", formError(err)
	}
	if len(b) > maxFieldBytes {
		return "", &model.ValidationError{Message: "invalid input parameters", Details: []string{fmt.Sprintf("field %s is too large", part.FormName())}}
	}
	return string(b), nil
}

func readImage(field string, part *multipart.Part) (model.ImageInput, error) {
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return model.ImageInput{}, formError(err)
	}
	head = head[:n]

	rest, err := io.Copy(io.Discard, part)
	if err != nil {
		return model.ImageInput{}, formError(err)
	}

	return model.ImageInput{
		Field:       field,
		Filename:    part.FileName(),
		ContentType: imageContentType(part.Header.Get("Content-Type"), head),
		Size:        int64(n) + rest,
	}, nil
}

// imageContentType returns the declared part content type, sniffing the content
// when it's missing or generic.
func imageContentType(declared string, head []byte) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "" || mediaType == "application/octet-stream" {
		if len(head) == 0 {
			return "application/octet-stream"
		}
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(head))
	}
	return strings.ToLower(mediaType)
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: the limit is %d bytes", errBodyTooLarge, maxErr.Limit)
	}
	return &model.ValidationError{Message: "invalid input parameters", Details: []string{fmt.Sprintf("could not read form: %s", err)}}
}
