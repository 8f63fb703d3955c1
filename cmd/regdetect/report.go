package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hazyhaar/regdetect/adaptive"
	"github.com/hazyhaar/regdetect/formdetect"
	"github.com/hazyhaar/regdetect/formdetect/detection"
)

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen, color.Bold)
	red   = color.New(color.FgRed, color.Bold)
	faint = color.New(color.Faint)
	cyan  = color.New(color.FgCyan)
)

func printSummary(w io.Writer, res *detection.Result) {
	verdict := red.Sprint("NOT a business-registration form")
	if res.IsBusinessRegistrationForm {
		verdict = green.Sprint("business-registration form")
	}
	fmt.Fprintf(w, "%s %s\n", bold.Sprint(res.URL), verdict)

	state := res.State
	if state == "" {
		state = "-"
	}
	fmt.Fprintf(w, "  confidence %s  state %s  type %s", bold.Sprintf("%d", res.ConfidenceScore), state, res.FormType)
	if res.DecisionRule != "" {
		fmt.Fprintf(w, "  rule %s", res.DecisionRule)
	}
	fmt.Fprintln(w)
	if res.FallbackMode {
		fmt.Fprintf(w, "  %s %s\n", red.Sprint("fallback:"), res.Message)
	}

	var parts []string
	for _, k := range formdetect.BreakdownKeys() {
		if v, ok := res.ConfidenceBreakdown[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", k, v))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  %s\n", faint.Sprint(strings.Join(parts, " ")))
	}

	if len(res.Fields) > 0 {
		fmt.Fprintf(w, "  %s\n", bold.Sprintf("fields (%d)", len(res.Fields)))
		for _, f := range res.Fields {
			name := f.Name
			if name == "" {
				name = f.ID
			}
			fmt.Fprintf(w, "    %-24s %-14s %s %3d  %s\n",
				truncate(name, 24), f.Type, cyan.Sprintf("%-22s", f.Classification.Category),
				f.Classification.Confidence, faint.Sprint(truncate(f.Label.Text, 40)))
		}
	}
	if res.Truncated {
		fmt.Fprintf(w, "  %s\n", faint.Sprint("scan truncated by budget"))
	}
}

func printPlan(w io.Writer, plan []formdetect.Fill) {
	fmt.Fprintf(w, "  %s\n", bold.Sprint("autofill"))
	for _, f := range plan {
		val := faint.Sprint("(missing)")
		if f.Found {
			val = f.Value
		}
		fmt.Fprintf(w, "    #%-3d %-24s %-28s %s\n", f.Index, truncate(f.Name, 24), f.Key, val)
	}
}

func printRecords(w io.Writer, recs []adaptive.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, faint.Sprint("no records"))
		return
	}
	for _, r := range recs {
		mark := faint.Sprint("?")
		if r.UserConfirmed {
			mark = green.Sprint("✓")
		}
		fmt.Fprintf(w, "%s %s  %-40s %-4s %-22s %3d\n",
			mark, r.Timestamp.Format("2006-01-02 15:04"), truncate(r.URLPattern, 40),
			r.State, r.FormType, r.ConfidenceScore)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
