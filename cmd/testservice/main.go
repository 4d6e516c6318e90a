// testservice runs the reference web application behind the test-service control API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/handlerqueue/multipart-contract-tests/testservice"
)

const (
	defaultPort     = 8000
	shutdownTimeout = time.Second * 5
)

var (
	port           int
	handlerQueue   string
	descriptorPath string
	uploadDir      string
	tempDir        string
	maxUploadBytes int64
	logLevel       string
)

var cmd = &cobra.Command{
	Use:   "testservice",
	Short: "Reference test service for the multipart contract tests",
	Long: `Runs a web application whose handler queue is assembled from a deployment
descriptor, together with the control API the contract tests use to observe it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logger.SetLevel(level)

		descriptor, err := loadDescriptor(cmd.Flags().Changed("max-upload-bytes"))
		if err != nil {
			return err
		}

		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()

		service, err := testservice.New(testservice.Config{
			Descriptor: descriptor,
			UploadDir:  uploadDir,
			TempDir:    tempDir,
			Logger:     logger,
			OnStop:     stop,
		})
		if err != nil {
			return err
		}
		defer service.Close()

		listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			return fmt.Errorf("unable to listen on port %d: %w", port, err)
		}
		server := &http.Server{Handler: service}
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Serve(listener)
		}()
		logger.Infof("test service %q listening on %s", descriptor.Name, listener.Addr())

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func loadDescriptor(overrideLimit bool) (testservice.Descriptor, error) {
	var (
		descriptor testservice.Descriptor
		err        error
	)
	if descriptorPath != "" {
		descriptor, err = testservice.LoadDescriptor(descriptorPath)
	} else {
		descriptor, err = testservice.BuiltinDescriptor(handlerQueue)
	}
	if err != nil {
		return descriptor, err
	}
	if overrideLimit {
		if maxUploadBytes < 0 {
			return descriptor, fmt.Errorf("max-upload-bytes must not be negative")
		}
		descriptor.Multipart.MaxContentLength = maxUploadBytes
	}
	return descriptor, nil
}

func init() {
	cmd.Flags().IntVar(&port, "port", defaultPort, "Port to listen on. The test harness uses 8111 for its own listener.")
	cmd.Flags().StringVar(&handlerQueue, "handler-queue", "new", "Built-in handler queue to use (old or new).")
	cmd.Flags().StringVar(&descriptorPath, "descriptor", "", "Path to a YAML deployment descriptor. Overrides --handler-queue.")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "", "Directory that uploaded files are saved to. Defaults to the system temp directory.")
	cmd.Flags().StringVar(&tempDir, "temp-dir", "", "Directory for parts in flight. Defaults to a subdirectory of the upload directory.")
	cmd.Flags().Int64Var(&maxUploadBytes, "max-upload-bytes", 0, "Override the descriptor's maximum request body size.")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error).")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
