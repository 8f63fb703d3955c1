package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/regdetect/adaptive"
	"github.com/hazyhaar/regdetect/formdetect"
	"github.com/hazyhaar/regdetect/formdetect/detection"
)

func newDetectCmd(a *app) *cobra.Command {
	var (
		pageURL     string
		profilePath string
		asJSON      bool
		useBrowser  bool
		record      bool
	)
	cmd := &cobra.Command{
		Use:   "detect <file|url>",
		Short: "Run one detection pass over an HTML file or a live URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			history, closeHistory, err := a.openHistory()
			if err != nil {
				return err
			}
			defer closeHistory()

			eng, err := a.engine(history)
			if err != nil {
				return err
			}

			h, closeHost, err := a.openHost(ctx, args[0], pageURL, useBrowser)
			if err != nil {
				return err
			}
			defer closeHost()

			page, err := h.Snapshot(ctx)
			if err != nil {
				return err
			}
			res, err := eng.Detect(ctx, page)
			if err != nil {
				return err
			}

			if record && res.IsBusinessRegistrationForm {
				if err := history.Record(ctx, adaptive.FromResult(res, false)); err != nil {
					a.logger.Warn("regdetect: record failed", "error", err)
				}
			}

			var plan []formdetect.Fill
			if profilePath != "" {
				profile, err := loadProfile(profilePath)
				if err != nil {
					return err
				}
				plan = eng.AutofillPlan(res, profile)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(detectOutput{Result: res, Autofill: plan})
			}
			printSummary(out, res)
			if plan != nil {
				printPlan(out, plan)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&pageURL, "url", "", "URL the HTML file was served from")
	f.StringVar(&profilePath, "profile", "", "YAML profile (key: value) to build an autofill plan from")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	f.BoolVar(&useBrowser, "browser", false, "render live URLs in headless Chrome instead of a plain GET")
	f.BoolVar(&record, "record", false, "append a positive result to the adaptive history")
	return cmd
}

type detectOutput struct {
	Result   *detection.Result `json:"result"`
	Autofill []formdetect.Fill `json:"autofill,omitempty"`
}

// loadProfile reads a flat YAML map of autofill keys to values, e.g.
// "business.ein: 12-3456789".
func loadProfile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	var profile map[string]string
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return profile, nil
}
