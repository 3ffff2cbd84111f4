package ids

import (
	"fmt"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/idauthority"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	authority *idauthority.ConsistentKeyIDAuthority
	idSrc     store.IStore

	// IDCommands represents the id command group
	IDCommands = &cobra.Command{
		Use:                "ids",
		Short:              "Allocate unique id blocks",
		PersistentPreRunE:  setupAuthority,
		PersistentPostRunE: closeAuthority,
	}

	// allocateCmd represents the allocate command
	allocateCmd = &cobra.Command{
		Use:   "allocate",
		Short: "Allocate one or more id blocks",
		Long:  "Allocate id blocks of a namespace and partition. Every block is printed as its range of counter values together with the first and last id.",
		Args:  cobra.NoArgs,
		RunE:  runAllocate,
	}
)

func init() {
	IDCommands.AddCommand(allocateCmd)

	IDCommands.PersistentFlags().Int64("block-size", 1000, util.WrapString("Number of counter values per block"))
	IDCommands.PersistentFlags().Int64("upper-bound", 1<<40, util.WrapString("Exclusive upper bound of the ids of a namespace"))
	IDCommands.PersistentFlags().Int("max-partitions", idauthority.DefaultMaxPartitions, util.WrapString("Number of partitions, a power of two"))

	allocateCmd.Flags().String("namespace", "default", util.WrapString("Namespace to allocate from"))
	allocateCmd.Flags().Int("partition", 0, util.WrapString("Partition to allocate from"))
	allocateCmd.Flags().Int("count", 1, util.WrapString("Number of blocks to allocate"))
}

// NewAuthority creates an id authority on s from the bound flags
func NewAuthority(s store.IStore) (*idauthority.ConsistentKeyIDAuthority, error) {
	conf, err := util.GetCoordConfig()
	if err != nil {
		return nil, err
	}
	ac := conf.AuthorityConfig()
	ac.MaxPartitions = viper.GetInt("max-partitions")

	sizer := idauthority.NewStaticSizer(viper.GetInt64("block-size"), viper.GetInt64("upper-bound"))
	return idauthority.NewConsistentKeyIDAuthority(s, sizer, ac)
}

// setupAuthority opens the store and creates the id authority
func setupAuthority(cmd *cobra.Command, _ []string) error {
	_, s, err := util.Setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	idSrc = s

	authority, err = NewAuthority(s)
	if err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

func closeAuthority(_ *cobra.Command, _ []string) error {
	if authority != nil {
		_ = authority.Close()
	}
	if idSrc != nil {
		return idSrc.Close()
	}
	return nil
}

// runAllocate handles the allocate command
func runAllocate(cmd *cobra.Command, _ []string) error {
	namespace := viper.GetString("namespace")
	partition := viper.GetInt("partition")
	count := viper.GetInt("count")

	for i := 0; i < count; i++ {
		block, err := authority.GetIDBlock(cmd.Context(), namespace, partition)
		if err != nil {
			return fmt.Errorf("failed to allocate block %d/%d: %w", i+1, count, err)
		}
		fmt.Printf("block=%s, ids=%d, first=%d, last=%d\n", block, block.NumIDs(), block.ID(0), block.ID(block.NumIDs()-1))
	}
	return nil
}
