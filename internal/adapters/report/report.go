// Package report renders valuation results as a ranked table or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/muesli/termenv"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Status colors.
const (
	colorGreen  = "#22A06B"
	colorYellow = "#F59E0B"
	colorRed    = "#D93025"
)

// Meta describes the run a result belongs to.
type Meta struct {
	Dataset string
	Utility string
	// Top limits the table to the highest-valued points. Zero shows all of them.
	Top int
}

// Renderer writes results to a terminal output.
type Renderer struct {
	out *termenv.Output
}

// New creates a Renderer on w that honors NO_COLOR.
func New(w io.Writer) *Renderer {
	return NewWithOutput(termenv.NewOutput(w, termenv.WithProfile(ColorProfile())))
}

// NewWithOutput creates a Renderer on a configured termenv output.
func NewWithOutput(out *termenv.Output) *Renderer {
	return &Renderer{out: out}
}

// ColorProfile returns Ascii when NO_COLOR is set and the detected profile otherwise.
func ColorProfile() termenv.Profile {
	if termenv.EnvNoColor() {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// Render writes res in the given format.
func (r *Renderer) Render(res *domain.ValuationResult, meta Meta, format string) error {
	switch format {
	case "", FormatTable:
		return r.Table(res, meta)
	case FormatJSON:
		return r.JSON(res, meta)
	default:
		return zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "unknown report format"), "format", format)
	}
}

// Table writes a summary header followed by the points ranked by value.
func (r *Renderer) Table(res *domain.ValuationResult, meta Meta) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s", res.Algorithm, res.Sampler)
	if meta.Utility != "" {
		fmt.Fprintf(&b, "  %s", meta.Utility)
	}
	if meta.Dataset != "" {
		fmt.Fprintf(&b, " on %s", meta.Dataset)
	}
	fmt.Fprintf(&b, " (%d points)\n", len(res.Values))
	fmt.Fprintf(&b, "%s\n", r.status(res))
	fmt.Fprintf(&b, "evaluations %d  updates %d  cache hits %d  skipped %d  failed %d  retries %d  elapsed %s\n\n",
		res.Evaluations, res.Updates, res.CacheHits, res.Skipped, res.Failed, res.Retries,
		res.Elapsed.Round(time.Millisecond))

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tINDEX\tVALUE\tSTDERR\tUPDATES")
	for i, v := range limit(res.Ranked(), meta.Top) {
		fmt.Fprintf(tw, "%d\t%d\t%.6f\t%s\t%d\n", i+1, v.Index, v.Mean, formatStdErr(v), v.Count)
	}
	if err := tw.Flush(); err != nil {
		return zerr.Wrap(err, "failed to format report")
	}

	if _, err := io.WriteString(r.out, b.String()); err != nil {
		return zerr.Wrap(err, "failed to write report")
	}
	return nil
}

func (r *Renderer) status(res *domain.ValuationResult) string {
	label := string(res.Status)
	switch {
	case res.LowConfidence:
		return r.out.String("! " + label + " (low confidence)").Foreground(r.out.Color(colorYellow)).String()
	case res.TargetMet:
		return r.out.String("✓ " + label).Foreground(r.out.Color(colorGreen)).String()
	default:
		return r.out.String("✗ " + label).Foreground(r.out.Color(colorRed)).String()
	}
}

type jsonValue struct {
	Rank    int      `json:"rank"`
	Index   int      `json:"index"`
	Value   float64  `json:"value"`
	StdErr  *float64 `json:"stderr"`
	Updates int      `json:"updates"`
}

type jsonReport struct {
	Dataset       string      `json:"dataset,omitempty"`
	Utility       string      `json:"utility,omitempty"`
	Algorithm     string      `json:"algorithm"`
	Sampler       string      `json:"sampler"`
	Status        string      `json:"status"`
	TargetMet     bool        `json:"target_met"`
	LowConfidence bool        `json:"low_confidence"`
	Evaluations   int         `json:"evaluations"`
	Updates       int         `json:"updates"`
	CacheHits     int         `json:"cache_hits"`
	Skipped       int         `json:"skipped"`
	Failed        int         `json:"failed"`
	Retries       int         `json:"retries"`
	Elapsed       string      `json:"elapsed"`
	Values        []jsonValue `json:"values"`
}

// JSON writes the ranked result as an indented JSON document.
// Standard errors of points with fewer than two updates are null.
func (r *Renderer) JSON(res *domain.ValuationResult, meta Meta) error {
	doc := jsonReport{
		Dataset:       meta.Dataset,
		Utility:       meta.Utility,
		Algorithm:     res.Algorithm,
		Sampler:       res.Sampler,
		Status:        string(res.Status),
		TargetMet:     res.TargetMet,
		LowConfidence: res.LowConfidence,
		Evaluations:   res.Evaluations,
		Updates:       res.Updates,
		CacheHits:     res.CacheHits,
		Skipped:       res.Skipped,
		Failed:        res.Failed,
		Retries:       res.Retries,
		Elapsed:       res.Elapsed.Round(time.Millisecond).String(),
		Values:        []jsonValue{},
	}
	for i, v := range limit(res.Ranked(), meta.Top) {
		jv := jsonValue{Rank: i + 1, Index: v.Index, Value: v.Mean, Updates: v.Count}
		if se := v.StdErr(); !math.IsInf(se, 0) {
			jv.StdErr = &se
		}
		doc.Values = append(doc.Values, jv)
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return zerr.Wrap(err, "failed to write report")
	}
	return nil
}

func limit(values []domain.ValueEstimate, top int) []domain.ValueEstimate {
	if top > 0 && top < len(values) {
		return values[:top]
	}
	return values
}

func formatStdErr(v domain.ValueEstimate) string {
	se := v.StdErr()
	if math.IsInf(se, 0) {
		return "n/a"
	}
	return strconv.FormatFloat(se, 'f', 6, 64)
}
