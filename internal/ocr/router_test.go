package ocr

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/docufield/docufield/internal/quality"
)

type fakeEngine struct {
	name string
	cand Candidate
	err  error
}

func (f fakeEngine) Name() string { return f.name }
func (f fakeEngine) Run(_ context.Context, _ string) (Candidate, error) {
	return f.cand, f.err
}

func testRouter(rapid, tess, paddle Engine) *Router {
	return NewRouter(quality.NewAssessor(nil), nil, rapid, tess, paddle, nil)
}

func engineNames(engines []Engine) []string {
	out := make([]string, len(engines))
	for i, e := range engines {
		out[i] = e.Name()
	}
	return out
}

func TestEnginesFor(t *testing.T) {
	r := testRouter(
		fakeEngine{name: EngineRapidOCR},
		fakeEngine{name: EngineTesseract},
		fakeEngine{name: EnginePaddleOCR},
	)

	cases := []struct {
		name  string
		score float64
		want  []string
	}{
		{"high quality", 0.90, []string{EngineRapidOCR, EngineTesseract}},
		{"exactly high threshold is medium", 0.85, []string{EngineTesseract, EngineRapidOCR}},
		{"medium quality", 0.70, []string{EngineTesseract, EngineRapidOCR}},
		{"exactly medium threshold is low", 0.60, []string{EngineTesseract, EngineRapidOCR, EnginePaddleOCR}},
		{"low quality", 0.30, []string{EngineTesseract, EngineRapidOCR, EnginePaddleOCR}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engineNames(r.EnginesFor(tc.score))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("EnginesFor(%f) = %v, want %v", tc.score, got, tc.want)
			}
		})
	}
}

func TestSelectBest(t *testing.T) {
	t.Run("picks max confidence", func(t *testing.T) {
		cands := []Candidate{
			{Engine: EngineTesseract, Confidence: 0.62},
			{Engine: EngineRapidOCR, Confidence: 0.91},
			{Engine: EnginePaddleOCR, Confidence: 0},
		}
		best := SelectBest(cands)
		if best.Engine != EngineRapidOCR {
			t.Errorf("expected rapidocr, got %s", best.Engine)
		}
		for _, c := range cands {
			if best.Confidence < c.Confidence {
				t.Errorf("best confidence %f below candidate %s (%f)", best.Confidence, c.Engine, c.Confidence)
			}
		}
	})

	t.Run("tie keeps invocation order", func(t *testing.T) {
		best := SelectBest([]Candidate{
			{Engine: EngineRapidOCR, Confidence: 0.8},
			{Engine: EngineTesseract, Confidence: 0.8},
		})
		if best.Engine != EngineRapidOCR {
			t.Errorf("expected first candidate to win ties, got %s", best.Engine)
		}
	})
}

func TestRoute(t *testing.T) {
	t.Run("engine failure is isolated", func(t *testing.T) {
		r := testRouter(
			fakeEngine{name: EngineRapidOCR, err: errors.New("sidecar down")},
			fakeEngine{name: EngineTesseract, cand: Candidate{Engine: EngineTesseract, Text: "hello", Confidence: 0.7}},
			fakeEngine{name: EnginePaddleOCR, cand: Placeholder(EnginePaddleOCR)},
		)
		// missing file scores the medium default 0.5, which routes through all three engines
		res, err := r.Route(context.Background(), "testdata-missing.png")
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		if res.Best.Engine != EngineTesseract {
			t.Errorf("expected tesseract best, got %s", res.Best.Engine)
		}
		if len(res.All) != 2 {
			t.Errorf("expected 2 candidates (failed engine omitted), got %d", len(res.All))
		}
		if !reflect.DeepEqual(res.EnginesUsed, []string{EngineTesseract, EnginePaddleOCR}) {
			t.Errorf("unexpected engines used: %v", res.EnginesUsed)
		}
	})

	t.Run("all engines failing fails the route", func(t *testing.T) {
		boom := errors.New("boom")
		r := testRouter(
			fakeEngine{name: EngineRapidOCR, err: boom},
			fakeEngine{name: EngineTesseract, err: boom},
			fakeEngine{name: EnginePaddleOCR, err: boom},
		)
		_, err := r.Route(context.Background(), "testdata-missing.png")
		if err == nil {
			t.Fatal("expected error when every engine fails")
		}
		if !errors.Is(err, boom) {
			t.Errorf("expected underlying engine error in chain, got %v", err)
		}
	})

	t.Run("placeholder wins only when alone", func(t *testing.T) {
		r := testRouter(
			fakeEngine{name: EngineRapidOCR, err: errors.New("down")},
			fakeEngine{name: EngineTesseract, err: errors.New("down")},
			fakeEngine{name: EnginePaddleOCR, cand: Placeholder(EnginePaddleOCR)},
		)
		res, err := r.Route(context.Background(), "testdata-missing.png")
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		if res.Best.Engine != EnginePaddleOCR || res.Best.Confidence != 0 {
			t.Errorf("expected zero-confidence placeholder as only candidate, got %+v", res.Best)
		}
	})
}
