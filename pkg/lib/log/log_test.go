package log_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/slok/meshforge/pkg/lib/log"
)

func TestNewLogrus(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.Out = &buf
	l.SetFormatter(&logrus.JSONFormatter{})

	logger := log.NewLogrus(logrus.NewEntry(l)).WithValues(log.Kv{"job-id": "01JOB"})
	logger.Infof("Job %s", "completed")

	out := buf.String()
	assert.Contains(t, out, `"msg":"Job completed"`)
	assert.Contains(t, out, `"job-id":"01JOB"`)
}
