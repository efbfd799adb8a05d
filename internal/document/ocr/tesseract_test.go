package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t10\t300\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t100\t20\t90\tREPUBLIQUE\n" +
	"5\t1\t1\t1\t1\t2\t120\t10\t60\t20\t80\tDE\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t100\t20\t70\tKOUASSI\n" +
	"5\t1\t1\t1\t2\t2\t120\t40\t100\t20\t-1\t \n" +
	"5\t1\t1\t1\t2\t3\t230\t40\t100\t20\t60\tAMENAN\n"

func TestParseTSV(t *testing.T) {
	res, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)

	assert.Equal(t, "REPUBLIQUE DE\nKOUASSI AMENAN", res.Text)
	assert.InDelta(t, 75.0, res.Confidence, 0.001)
}

func TestParseTSV_NoWords(t *testing.T) {
	res, err := ParseTSV([]byte("level\tpage_num\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
}

func TestParseTSV_BadConfidence(t *testing.T) {
	_, err := ParseTSV([]byte("5\t1\t1\t1\t1\t1\t0\t0\t0\t0\tabc\tword\n"))
	assert.Error(t, err)
}

func TestTesseract_PassesArgsAndParsesOutput(t *testing.T) {
	var gotArgs []string
	var gotStdin []byte
	engine := NewTesseract("tesseract", "fra+eng").WithRunner(
		func(_ context.Context, name string, args []string, stdin []byte) ([]byte, error) {
			gotArgs = append([]string{name}, args...)
			gotStdin = stdin
			return []byte(sampleTSV), nil
		})

	res, err := engine.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)

	assert.Equal(t, "tesseract stdin stdout -l fra+eng tsv", strings.Join(gotArgs, " "))
	assert.Equal(t, "\x89PNG", string(gotStdin[:4]))
	assert.Contains(t, res.Text, "KOUASSI")
}

func TestTesseract_RunnerError(t *testing.T) {
	engine := NewTesseract("tesseract", "eng").WithRunner(
		func(context.Context, string, []string, []byte) ([]byte, error) {
			return nil, errors.New("exit status 1")
		})

	_, err := engine.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err)
}

func TestTesseract_TimeoutBoundsRunner(t *testing.T) {
	engine := NewTesseract("tesseract", "eng").WithTimeout(20 * time.Millisecond).WithRunner(
		func(ctx context.Context, _ string, _ []string, _ []byte) ([]byte, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := engine.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
