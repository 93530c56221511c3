package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/aligator/mcrecover"
	"github.com/aligator/mcrecover/filedb"
)

var scanCmd = &cobra.Command{
	Use:   "scan [--add] [--dat N] [--bat N] <image>...",
	Short: "Search the free blocks of card images for lost files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := loadDatabase()
		if err != nil {
			return err
		}

		opts, err := scanOptions()
		if err != nil {
			return err
		}

		add, _ := cmd.Flags().GetBool("add")
		dat, _ := cmd.Flags().GetInt("dat")
		bat, _ := cmd.Flags().GetInt("bat")

		// Every image gets its own goroutine and output buffer, the buffers
		// are printed in argument order.
		out := make([]bytes.Buffer, len(args))
		eg, ctx := errgroup.WithContext(cmd.Context())
		eg.SetLimit(max(viper.GetInt("scan.jobs"), 1))
		for i, path := range args {
			i, path := i, path
			eg.Go(func() error {
				card, err := openCard(cmd, path)
				if err != nil {
					return err
				}
				if dat >= 0 {
					if err := card.SetActiveDatIdx(dat); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
				}
				if bat >= 0 {
					if err := card.SetActiveBatIdx(bat); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
				}

				results, err := card.Scan(ctx, db, opts...)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				fmt.Fprintf(&out[i], "%s: %d lost files found\n", path, len(results))
				printResults(&out[i], results)
				if add {
					added := card.AddLostFiles(results)
					fmt.Fprintf(&out[i], "%d files added\n\n", len(added))
					printFiles(&out[i], card.Files())
				}
				fmt.Fprintln(&out[i])
				return nil
			})
		}

		err = eg.Wait()
		for i := range out {
			_, _ = out[i].WriteTo(os.Stdout)
		}
		return err
	},
}

func init() {
	scanCmd.Flags().Bool("add", false, "Integrate the found files into the file list and print it")
	scanCmd.Flags().Int("dat", -1, "Force the active directory copy (0 or 1)")
	scanCmd.Flags().Int("bat", -1, "Force the active block table copy (0 or 1)")
	scanCmd.Flags().StringSlice("database", nil, "Signature database XML files")
	scanCmd.Flags().String("region", "", "Region appended to three character game codes")
	scanCmd.Flags().Bool("require-checksum", false, "Drop files whose checksum does not verify")
	scanCmd.Flags().IntP("jobs", "j", 0, "Number of images scanned in parallel")

	_ = viper.BindPFlag("database", scanCmd.Flags().Lookup("database"))
	_ = viper.BindPFlag("scan.region", scanCmd.Flags().Lookup("region"))
	_ = viper.BindPFlag("scan.require-checksum", scanCmd.Flags().Lookup("require-checksum"))
	_ = viper.BindPFlag("scan.jobs", scanCmd.Flags().Lookup("jobs"))

	rootCmd.AddCommand(scanCmd)
}

func loadDatabase() (*filedb.Database, error) {
	paths := viper.GetStringSlice("database")
	if len(paths) == 0 {
		return nil, errors.New("no signature database configured, use --database or the database config key")
	}

	db, err := filedb.Load(osFs, paths...)
	if err != nil {
		return nil, err
	}
	if db.Skipped() > 0 {
		log.Warnf("skipped %d database entries:\n%s", db.Skipped(), db.ErrorString())
	}
	log.Infof("loaded %d descriptors", db.Len())
	return db, nil
}

func scanOptions() ([]mcrecover.ScanOption, error) {
	opts := []mcrecover.ScanOption{
		mcrecover.WithRequireValidChecksum(viper.GetBool("scan.require-checksum")),
	}

	// An unset flag must not shadow the configured or default region.
	if region := viper.GetString("scan.region"); region != "" {
		if len(region) != 1 {
			return nil, fmt.Errorf("region %q must be a single character", region)
		}
		opts = append(opts, mcrecover.WithRegion(region[0]))
	}
	return opts, nil
}

// describe returns the rendered descriptor descriptions, falling back to the
// comment found on the card.
func describe(sd mcrecover.SearchData) string {
	game, file := sd.GameName, sd.FileInfo
	if game == "" {
		game = sd.GameDesc
	}
	if file == "" {
		file = sd.FileDesc
	}
	return game + " / " + file
}

func printResults(out io.Writer, results []mcrecover.SearchData) {
	if len(results) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tFILENAME\tBLOCKS\tCHAIN\tCHECKSUM\tDESCRIPTION")
	for _, sd := range results {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%v\t%s\n",
			sd.Entry.ID(), sd.Entry.Filename, sd.FatEntries, sd.FatSource, sd.Checksum, describe(sd))
	}
}
