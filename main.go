package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roffe/gmapwidget/pkg/assets"
	"github.com/roffe/gmapwidget/pkg/browser/wsbrowser"
	"github.com/roffe/gmapwidget/pkg/config"
	"github.com/roffe/gmapwidget/pkg/gmap"
	"github.com/roffe/gmapwidget/pkg/htmlloader"
	"github.com/roffe/gmapwidget/pkg/theme"
	"github.com/roffe/gmapwidget/pkg/windows"
)

var (
	cfgFile string
	listen  string
	noOpen  bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gmapwidget",
	Short: "Control a Google map in the system browser",
	Long: `gmapwidget serves a Google map on a local port, opens it in the system
browser and shows a control panel that follows and drives the map.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.Flags().StringVar(&listen, "listen", "", "address to serve the map page on")
	rootCmd.Flags().BoolVar(&noOpen, "no-open", false, "do not open the system browser")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Browser.Listen = listen
	}
	if noOpen {
		cfg.Browser.Open = false
	}
	if verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, _ []string) error {
	consoleErr := attachConsole()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if consoleErr != nil {
		logger.Debug("no console", zap.Error(consoleErr))
	}
	if cfg.Google.APIKey == "" {
		logger.Warn("no google.api_key configured, the map will show a development watermark")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	a := app.NewWithID("com.roffe.gmapwidget")
	a.Settings().SetTheme(&theme.MapTheme{})

	b := wsbrowser.New(
		wsbrowser.WithAddr(cfg.Browser.Listen),
		wsbrowser.WithDispatcher(fyne.Do),
		wsbrowser.WithLogger(logger),
	)
	if err := b.Start(ctx); err != nil {
		return err
	}

	loader := htmlloader.New(assets.FS,
		htmlloader.WithCache(time.Hour),
		htmlloader.WithData(gmap.TemplateData{APIKey: cfg.Google.APIKey}),
		htmlloader.WithLogger(logger),
	)
	m, err := gmap.New(b, gmap.WithLoader(loader), gmap.WithLogger(logger))
	if err != nil {
		b.Close()
		return err
	}
	defer func() {
		if err := m.Dispose(); err != nil {
			logger.Warn("dispose map", zap.Error(err))
		}
	}()
	if err := initialState(m, cfg.Map); err != nil {
		return err
	}

	mc, err := windows.NewMapControls(a, m, b.URL(), logger)
	if err != nil {
		return err
	}
	mc.SetMaster()

	if cfg.Browser.Open {
		if err := b.Open(); err != nil {
			logger.Warn("could not open browser, open the page manually", zap.String("url", b.URL()), zap.Error(err))
		}
	} else {
		logger.Info("map page ready", zap.String("url", b.URL()))
	}

	go func() {
		<-ctx.Done()
		fyne.Do(a.Quit)
	}()

	mc.ShowAndRun()
	return nil
}

// initialState is applied before the page loads and sent along with init.
func initialState(m *gmap.GMap, mc config.MapConfig) error {
	center, err := mc.LatLng()
	if err != nil {
		return err
	}
	t, err := mc.MapType()
	if err != nil {
		return err
	}
	if err := m.SetCenter(center); err != nil {
		return err
	}
	if err := m.SetZoom(mc.Zoom); err != nil {
		return err
	}
	return m.SetType(t)
}
