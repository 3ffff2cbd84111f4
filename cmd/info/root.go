package info

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/spf13/cobra"
)

var (
	// InfoCmd represents the info command
	InfoCmd = &cobra.Command{
		Use:   "info",
		Short: "Show the guarantees and engine statistics of the backend",
		Long:  "Open the configured backend and print its features. Backends running on a local engine (memory, raft) also report engine statistics such as the estimated size and the shard distribution.",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
)

func run(cmd *cobra.Command, _ []string) error {
	conf, s, err := util.Setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	f := s.Features()
	fmt.Printf("%-22s%s\n", "backend", conf.Backend)
	fmt.Printf("%-22s%t\n", "distributed", f.Distributed)
	fmt.Printf("%-22s%t\n", "key consistent", f.KeyConsistent)
	fmt.Printf("%-22s%t\n", "local key consistent", f.LocalKeyConsistent)

	info, err := store.GetDBInfo(cmd.Context(), s)
	if store.IsUnsupported(err) {
		fmt.Printf("%-22s%s\n", "engine", "not exposed by this backend")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read engine info: %w", err)
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode engine info: %w", err)
	}
	fmt.Printf("engine:\n%s\n", out)
	return nil
}
