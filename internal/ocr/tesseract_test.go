package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubRunner struct {
	stdout string
	stderr string
	err    error

	gotName string
	gotArgs []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.gotName = name
	s.gotArgs = args
	return []byte(s.stdout), []byte(s.stderr), s.err
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t600\t800\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t20\t50\t12\t96\tInvoice\n" +
	"5\t1\t1\t1\t1\t2\t70\t20\t40\t12\t88\tTotal\n" +
	"5\t1\t1\t1\t1\t3\t120\t20\t30\t12\t-1\t\n"

func TestTesseractRun(t *testing.T) {
	t.Run("parses tsv into candidate", func(t *testing.T) {
		r := &stubRunner{stdout: sampleTSV}
		eng := NewTesseract(TesseractConfig{Lang: "eng", PSM: 6}, r, nil)

		cand, err := eng.Run(context.Background(), "page.png")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if cand.Text != "Invoice Total" {
			t.Errorf("text = %q", cand.Text)
		}
		// mean of 96 and 88 is 92 -> 0.92
		if cand.Confidence < 0.919 || cand.Confidence > 0.921 {
			t.Errorf("confidence = %f, want ~0.92", cand.Confidence)
		}
		if len(cand.Boxes) != 2 {
			t.Fatalf("boxes = %d, want 2", len(cand.Boxes))
		}
		if cand.Boxes[0].X != 10 || cand.Boxes[0].Width != 50 || cand.Boxes[0].Text != "Invoice" {
			t.Errorf("unexpected first box: %+v", cand.Boxes[0])
		}
		if !strings.Contains(strings.Join(r.gotArgs, " "), "--psm 6") {
			t.Errorf("expected psm flag, got args %v", r.gotArgs)
		}
		if r.gotArgs[len(r.gotArgs)-1] != "tsv" {
			t.Errorf("expected tsv output mode, got args %v", r.gotArgs)
		}
	})

	t.Run("empty page yields zero confidence", func(t *testing.T) {
		r := &stubRunner{stdout: "level\t...\tconf\ttext\n"}
		eng := NewTesseract(TesseractConfig{}, r, nil)

		cand, err := eng.Run(context.Background(), "page.png")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if cand.Confidence != 0 || cand.Text != "" {
			t.Errorf("expected empty candidate, got %+v", cand)
		}
	})

	t.Run("binary failure returns error", func(t *testing.T) {
		r := &stubRunner{err: errors.New("exit status 1"), stderr: "no such file"}
		eng := NewTesseract(TesseractConfig{}, r, nil)

		if _, err := eng.Run(context.Background(), "page.png"); err == nil {
			t.Fatal("expected error from failing binary")
		}
	})
}
