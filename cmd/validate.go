package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/executor"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the resolved selector groups",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	e, err := envFrom(cmd.Context())
	if err != nil {
		return err
	}
	selectors, err := e.cfg.Selectors.Resolve()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "start urls: %d\n", len(e.cfg.Crawler.StartURLs))
	fmt.Fprintf(out, "sink: %s\n", e.cfg.Sink.Type)
	for _, set := range append([]crawler.SelectorSet{selectors.Default}, selectors.Named...) {
		if err := executor.ValidateSelectors(set); err != nil {
			return err
		}
		pattern := "*"
		if set.URLPattern != nil {
			pattern = set.URLPattern.String()
		}
		fmt.Fprintf(out, "group %s: %s\n", set.Name, pattern)
	}
	fmt.Fprintln(out, "configuration ok")
	return nil
}
