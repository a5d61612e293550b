// Package lib provides a Go SDK for the meshforge 3D generation API.
//
// The SDK talks to a running meshforge server (see `meshforge serve`) and
// exposes the synchronous generation endpoint together with the simulated
// pipeline jobs, without shelling out to the meshforge CLI binary.
//
// # Quick Start
//
// Create a client and generate a model from a text prompt:
//
//	client, err := lib.New(lib.Config{ServerURL: "http://127.0.0.1:3000"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := client.Generate(ctx, lib.GenerateOpts{
//	    Type:    lib.GenerationTypeText,
//	    Prompt:  "A low poly red fox",
//	    Quality: lib.QualityHigh,
//	})
//	fmt.Println(res.ArtifactURL, res.Metrics.Vertices)
//
// Image generations stream the images to the server:
//
//	f, _ := os.Open("chair.png")
//	defer f.Close()
//	client.Generate(ctx, lib.GenerateOpts{
//	    Type:   lib.GenerationTypeSingleImage,
//	    Images: []lib.Image{{Filename: "chair.png", ContentType: "image/png", Content: f}},
//	})
//
// # Jobs
//
// Pipeline jobs run asynchronously on the server through the generation
// stages (ingest, preflight, reconstruct, mesh, texture, optimize, evaluate
// and export). Start a job and watch it until it finishes:
//
//	job, _ := client.CreateJob(ctx, lib.GenerateOpts{Type: lib.GenerationTypeText, Prompt: "a red chair"})
//	client.WatchJob(ctx, job.ID, func(j lib.Job) error {
//	    fmt.Printf("%.0f%% %s\n", j.Progress, j.Status)
//	    return nil
//	})
//
// Jobs can be listed, inspected, cancelled and traced:
//
//	running := lib.JobStatusRunning
//	jobs, _ := client.ListJobs(ctx, &lib.ListJobsOpts{Status: &running})
//	client.CancelJob(ctx, jobs[0].ID)
//	trace, _ := client.GetJobTrace(ctx, jobs[0].ID)
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotValid]: The server rejected the request input.
//   - [ErrNotFound]: The job does not exist.
//   - [ErrConflict]: The job state doesn't allow the operation or the server is at capacity.
//
// Server errors are returned as [*APIError], with the validation problems in its Details.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines.
package lib
