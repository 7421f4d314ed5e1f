// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shielddns/shielddns/filter"
)

// editRules runs the allow, block, unallow and unblock commands against store.
func editRules(ctx context.Context, store filter.RuleStore, command string, patterns []string) error {
	remove := strings.HasPrefix(command, "un")
	kind, err := filter.ParseKind(strings.TrimPrefix(command, "un"))
	if err != nil {
		return err
	}
	if len(patterns) == 0 {
		return fmt.Errorf("%s needs at least one domain", command)
	}
	for _, p := range patterns {
		r := filter.Rule{Pattern: p, Kind: kind}
		if remove {
			err = store.Remove(ctx, r)
		} else {
			err = store.Add(ctx, r)
		}
		if err != nil {
			return fmt.Errorf("failed to %s %q: %w", command, p, err)
		}
	}
	return nil
}

func listRules(ctx context.Context, store filter.RuleStore, w io.Writer) error {
	rules, err := store.Load(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LIST\tPATTERN")
	for _, r := range rules {
		fmt.Fprintf(tw, "%v\t%v\n", r.Kind, r.Pattern)
	}
	return tw.Flush()
}

// checkDomains prints the decision for each domain, using the same lists as the run command.
func checkDomains(engine *filter.Engine, w io.Writer, domains []string) error {
	if len(domains) == 0 {
		return fmt.Errorf("check needs at least one domain")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tDECISION\tLIST")
	for _, d := range domains {
		decision, kind := engine.Decide(d)
		fmt.Fprintf(tw, "%v\t%v\t%v\n", filter.Normalize(d), decision, kind)
	}
	return tw.Flush()
}
