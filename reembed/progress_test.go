package reembed

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	t.Run("reports at interval", func(t *testing.T) {
		var out bytes.Buffer
		tracker := NewProgressTracker(&out, 100, 10)
		tracker.Start()

		tracker.Update(5)
		assert.Empty(t, out.String())

		tracker.Update(10)
		assert.Contains(t, out.String(), "10/100")
	})

	t.Run("finish reports full total", func(t *testing.T) {
		var out bytes.Buffer
		tracker := NewProgressTracker(&out, 50, 10)
		tracker.Start()
		tracker.Update(30)
		tracker.Finish()
		assert.Contains(t, out.String(), "50/50 (100.0%)")
	})

	t.Run("update before start is ignored", func(t *testing.T) {
		var out bytes.Buffer
		tracker := NewProgressTracker(&out, 50, 10)
		tracker.Update(30)
		assert.Empty(t, out.String())
		assert.Zero(t, tracker.Elapsed())
	})

	t.Run("caps at total", func(t *testing.T) {
		var out bytes.Buffer
		tracker := NewProgressTracker(&out, 10, 1)
		tracker.Start()
		tracker.Update(25)
		assert.Contains(t, out.String(), "10/10")
	})
}
