package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	locker  *lockmgr.ConsistentKeyLocker
	lockSrc store.IStore

	holdFor   time.Duration
	checkLock bool

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:                "lock",
		Short:              "Acquire and inspect consistent-key locks",
		PersistentPreRunE:  setupLocker,
		PersistentPostRunE: closeLocker,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [row] [column]",
		Short: "Acquire a lock, hold it and release it again",
		Long:  "Acquire the lock on (row, column), optionally revalidate it, hold it for the given duration and release it.",
		Args:  cobra.ExactArgs(2),
		RunE:  runAcquire,
	}

	// inspectCmd represents the inspect command
	inspectCmd = &cobra.Command{
		Use:   "inspect [row] [column]",
		Short: "List the claims of a lock",
		Args:  cobra.ExactArgs(2),
		RunE:  runInspect,
	}
)

func init() {
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(inspectCmd)

	acquireCmd.Flags().DurationVar(&holdFor, "hold", 0, util.WrapString("How long to hold the lock before releasing it"))
	acquireCmd.Flags().BoolVar(&checkLock, "check", false, util.WrapString("Revalidate the lock after acquiring it"))
}

// setupLocker opens the store and creates the lock manager
func setupLocker(cmd *cobra.Command, _ []string) error {
	conf, s, err := util.Setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	lockSrc = s

	locker, err = lockmgr.NewConsistentKeyLocker(s, conf.LockerConfig())
	if err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

func closeLocker(_ *cobra.Command, _ []string) error {
	if locker != nil {
		_ = locker.Close()
	}
	if lockSrc != nil {
		return lockSrc.Close()
	}
	return nil
}

// runAcquire handles the acquire lock command
func runAcquire(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key := lockmgr.LockKey{Row: args[0], Column: args[1]}
	holder := lockmgr.Holder("cli-" + uuid.NewString())

	start := time.Now()
	status, err := locker.Acquire(ctx, holder, key)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	fmt.Printf("acquired=true, key=%s, written=%s, expires=%s, took=%s\n",
		key, status.WriteTimestamp.Format(time.RFC3339Nano), status.ExpirationTimestamp.Format(time.RFC3339Nano), time.Since(start))

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), locker.Config().CleanupTimeout)
		defer cancel()
		if err := locker.Release(rctx, holder, key); err != nil {
			fmt.Printf("release failed: %v\n", err)
			return
		}
		fmt.Printf("released=true, key=%s\n", key)
	}()

	if checkLock {
		if err := locker.Check(ctx, holder, key); err != nil {
			return fmt.Errorf("lock %s did not survive revalidation: %w", key, err)
		}
		fmt.Printf("checked=true, key=%s\n", key)
	}

	if holdFor > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(holdFor):
		}
	}
	return nil
}

// runInspect handles the inspect command
func runInspect(cmd *cobra.Command, args []string) error {
	key := lockmgr.LockKey{Row: args[0], Column: args[1]}

	claims, err := locker.Claims(cmd.Context(), key)
	if err != nil {
		return fmt.Errorf("failed to read claims of %s: %w", key, err)
	}
	if len(claims) == 0 {
		fmt.Printf("no claims for %s\n", key)
		return nil
	}

	fmt.Printf("%-32s  %-36s  %s\n", "TIMESTAMP", "RID", "EXPIRED")
	for _, c := range claims {
		fmt.Printf("%-32s  %-36s  %t\n", c.Timestamp.Format(time.RFC3339Nano), formatRid(c.Rid), c.Expired)
	}
	return nil
}

// formatRid prints uuid rids in their canonical form and everything else as text
func formatRid(rid []byte) string {
	if id, err := uuid.FromBytes(rid); err == nil {
		return id.String()
	}
	return string(rid)
}
