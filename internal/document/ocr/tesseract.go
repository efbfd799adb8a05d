package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes a command with stdin and returns stdout.
type Runner func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// Tesseract drives the tesseract CLI in TSV mode.
type Tesseract struct {
	binary    string
	languages string
	timeout   time.Duration
	run       Runner
}

// NewTesseract returns an Engine backed by the tesseract binary.
// languages uses tesseract syntax, e.g. "fra+eng".
func NewTesseract(binary, languages string) *Tesseract {
	return &Tesseract{binary: binary, languages: languages, run: execRunner}
}

// WithRunner replaces process execution. Tests use it.
func (t *Tesseract) WithRunner(r Runner) *Tesseract {
	t.run = r
	return t
}

// WithTimeout kills the process after d. Zero leaves only ctx in control.
func (t *Tesseract) WithTimeout(d time.Duration) *Tesseract {
	t.timeout = d
	return t
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (RawResult, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return RawResult{}, fmt.Errorf("encode image: %w", err)
	}
	args := []string{"stdin", "stdout", "-l", t.languages, "tsv"}
	out, err := t.run(ctx, t.binary, args, buf.Bytes())
	if err != nil {
		return RawResult{}, err
	}
	return ParseTSV(out)
}

func execRunner(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// ParseTSV rebuilds text line by line from tesseract TSV output. Confidence is
// the mean of word confidences, ignoring the -1 rows tesseract emits for layout.
func ParseTSV(data []byte) (RawResult, error) {
	type lineKey struct{ page, block, par, line int }

	var (
		lines    []string
		current  []string
		lastKey  lineKey
		haveLine bool
		confSum  float64
		words    int
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
		}
		current = current[:0]
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	header := true
	for sc.Scan() {
		if header {
			header = false
			if strings.HasPrefix(sc.Text(), "level") {
				continue
			}
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil {
			return RawResult{}, fmt.Errorf("parse tsv confidence %q: %w", cols[10], err)
		}
		if text == "" || conf < 0 {
			continue
		}
		key := lineKey{atoi(cols[1]), atoi(cols[2]), atoi(cols[3]), atoi(cols[4])}
		if haveLine && key != lastKey {
			flush()
		}
		lastKey, haveLine = key, true
		current = append(current, text)
		confSum += conf
		words++
	}
	if err := sc.Err(); err != nil {
		return RawResult{}, fmt.Errorf("read tsv: %w", err)
	}
	flush()

	res := RawResult{Text: strings.Join(lines, "\n")}
	if words > 0 {
		res.Confidence = ClampConfidence(confSum / float64(words))
	}
	return res, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
