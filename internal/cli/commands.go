package cli

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/locie/comepos-fetcher/internal/core"
	"github.com/locie/comepos-fetcher/internal/export"
	"github.com/locie/comepos-fetcher/internal/fetch"
	"github.com/locie/comepos-fetcher/internal/store"
)

func init() {
	rootCmd.AddCommand(buildingsCmd)
	rootCmd.AddCommand(zonesCmd)
	rootCmd.AddCommand(sensorsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(cleanCmd)

	exportCmd.Flags().StringP("out", "o", ".", "Output directory")
	exportCmd.Flags().String("start", "", "Only export rows from this date on (YYYY-MM-DD)")
	exportCmd.Flags().String("end", "", "Only export rows up to this date (YYYY-MM-DD)")
	cleanCmd.Flags().Bool("all", false, "Remove the whole store file")
}

var buildingsCmd = &cobra.Command{
	Use:   "buildings",
	Short: "List the buildings available to the account",
	RunE:  handleBuildings,
}

var zonesCmd = &cobra.Command{
	Use:   "zones [building-id]",
	Short: "List the zones of a building",
	Args:  cobra.ExactArgs(1),
	RunE:  handleZones,
}

var sensorsCmd = &cobra.Command{
	Use:   "sensors [building-id]",
	Short: "List the sensors of a building",
	Args:  cobra.ExactArgs(1),
	RunE:  handleSensors,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [building-id] [sensor-slug...]",
	Short: "Fetch and cache sensor data (full history on first run)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  handleFetch,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [building-id] [sensor-slug...]",
	Short: "Append the measurements recorded since the last fetch",
	Args:  cobra.MinimumNArgs(1),
	RunE:  handleRefresh,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every cached series as CSV files",
	RunE:  handleExport,
}

var cleanCmd = &cobra.Command{
	Use:   "clean [building-id]",
	Short: "Remove a building's cached data, or the whole store with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleClean,
}

func handleBuildings(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	service, client, err := newService(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	buildings, err := service.Buildings()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS")
	for _, b := range buildings {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Name, b.Status)
	}
	return w.Flush()
}

func handleZones(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	service, client, err := newService(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	zones, err := service.Zones(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, z := range zones {
		fmt.Fprintf(w, "%s\t%s\n", z.ID, z.Name)
	}
	return w.Flush()
}

func handleSensors(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	service, client, err := newService(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	building, err := fetch.NewBuilding(service, st, args[0], buildingOptions(cfg)...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tZONE\tLABEL\tUNIT\tSERVICE\tVARIABLE")
	for _, slug := range building.Order {
		s := building.Sensors[slug]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			slug, s.Info.Zone, s.Info.Label, s.Info.Unit, s.Info.ServiceName, s.Info.VariableName)
	}
	return w.Flush()
}

func handleFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	service, client, err := newService(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	building, err := fetch.NewBuilding(service, st, args[0], buildingOptions(cfg)...)
	if err != nil {
		return err
	}

	slugs := args[1:]
	if len(slugs) == 0 {
		slugs = building.Order
	}
	for _, slug := range slugs {
		sensor, ok := building.Sensor(slug)
		if !ok {
			return fmt.Errorf("unknown sensor %q in building %q", slug, args[0])
		}
		series, err := sensor.Data()
		if err != nil {
			return err
		}
		log.WithField("sensor", slug).Infof("%d rows cached", len(series))
	}
	return nil
}

func handleRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	service, client, err := newService(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	building, err := fetch.NewBuilding(service, st, args[0], buildingOptions(cfg)...)
	if err != nil {
		return err
	}

	if slugs := args[1:]; len(slugs) > 0 {
		for _, slug := range slugs {
			sensor, ok := building.Sensor(slug)
			if !ok {
				return fmt.Errorf("unknown sensor %q in building %q", slug, args[0])
			}
			if err := sensor.Refresh(); err != nil {
				return err
			}
		}
		return nil
	}

	// Ctrl-C finishes the sensor in flight, then stops.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return building.RefreshAll(ctx)
}

func handleExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	dir, _ := cmd.Flags().GetString("out")
	opts := export.Options{}
	if s, _ := cmd.Flags().GetString("start"); s != "" {
		if opts.Start, err = core.ParseDate(s); err != nil {
			return err
		}
	}
	if e, _ := cmd.Flags().GetString("end"); e != "" {
		var end time.Time
		if end, err = core.ParseDate(e); err != nil {
			return err
		}
		// Inclusive end date.
		opts.End = end.Add(24*time.Hour - time.Nanosecond)
	}

	return export.WriteAll(st, dir, opts, log)
}

func handleClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	if all {
		if err := store.Remove(cfg.StorePath); err != nil {
			return err
		}
		log.Info("store removed")
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("a building id is required unless --all is given")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeletePrefix(store.BuildingPrefix(args[0])); err != nil {
		return err
	}
	log.WithField("building", args[0]).Info("cached data removed")
	return nil
}
