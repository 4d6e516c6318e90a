package testservice

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultAppPath is where the application is mounted, relative to the service root.
const DefaultAppPath = "/app/"

// Config contains the settings for a Service.
type Config struct {
	Descriptor Descriptor

	// UploadDir is where the Upload action saves files. Defaults to the system temp directory.
	UploadDir string

	// TempDir holds parts while a request is processed. Defaults to a subdirectory of UploadDir.
	TempDir string

	// AppPath is the path the application is mounted at. Defaults to DefaultAppPath. If it is
	// "/", the application receives every request except those for the control API.
	AppPath string

	// Logger receives the application's log output. Defaults to a new logrus logger.
	Logger *logrus.Logger

	// OnStop is called when the test harness asks the service to exit.
	OnStop func()
}

// Service is the test service: the web application under test, plus the control API that
// the test harness uses to inspect and manipulate it.
type Service struct {
	descriptor Descriptor
	appPath    string
	uploadDir  string
	logger     *logrus.Logger
	scopes     *scopeRegistry
	faults     *faultSet
	onStop     func()
	mux        *http.ServeMux
}

func New(config Config) (*Service, error) {
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}
	uploadDir := config.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	tempDir := config.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(uploadDir, "multipart-parts")
	}
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create temp dir: %w", err)
	}
	appPath := config.AppPath
	if appPath == "" {
		appPath = DefaultAppPath
	}
	if !strings.HasPrefix(appPath, "/") {
		appPath = "/" + appPath
	}
	if !strings.HasSuffix(appPath, "/") {
		appPath += "/"
	}
	if appPath != "/" && strings.HasPrefix(appPath, scopesPathPrefix) {
		return nil, fmt.Errorf("app path %q conflicts with the control API", appPath)
	}

	faults := newFaultSet()
	s := &Service{
		descriptor: config.Descriptor,
		appPath:    appPath,
		uploadDir:  uploadDir,
		logger:     logger,
		faults:     faults,
		scopes:     newScopeRegistry(faults),
		onStop:     config.OnStop,
	}
	logger.AddHook(&scopeLogHook{registry: s.scopes})

	queue, err := s.buildQueue(tempDir)
	if err != nil {
		return nil, err
	}

	// The control API owns exactly "/" and the scopes subtree. An application mounted at the
	// root receives every other path.
	var rest http.Handler = http.NotFoundHandler()
	s.mux = http.NewServeMux()
	if appPath == "/" {
		rest = queue
	} else {
		s.mux.Handle(appPath, http.StripPrefix(strings.TrimSuffix(appPath, "/"), queue))
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			rest.ServeHTTP(w, r)
			return
		}
		s.serveRoot(w, r)
	})
	s.mux.HandleFunc(scopesPathPrefix, s.serveScope)
	return s, nil
}

func (s *Service) buildQueue(tempDir string) (*Queue, error) {
	action := &multipartAction{uploadDir: s.uploadDir}
	var handlers []Handler
	for _, name := range s.descriptor.Handlers {
		switch name {
		case HTTPErrorHandler:
			handlers = append(handlers, httpErrorHandler{})
		case SessionStoreHandler:
			h, err := newSessionStoreHandler(s.descriptor.SessionStore)
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, h)
		case MultipartHandler:
			handlers = append(handlers, &multipartHandler{
				maxContentLength: s.descriptor.Multipart.MaxContentLength,
				store:            &partStore{dir: tempDir, faults: s.faults},
			})
		default:
			return nil, fmt.Errorf("unknown handler %q", name)
		}
	}
	s.logger.Infof("handler queue %q: %s", s.descriptor.Name, strings.Join(s.descriptor.Handlers, " -> "))
	return NewQueue(s.logger, action.dispatch, handlers...), nil
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close ends all open scopes.
func (s *Service) Close() {
	s.scopes.closeAll()
}
