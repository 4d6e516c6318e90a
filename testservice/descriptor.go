package testservice

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/handlerqueue/multipart-contract-tests/hiddenstore"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"
)

//go:embed descriptors/*.yaml
var builtinDescriptors embed.FS

const (
	HTTPErrorHandler    = "httpErrorHandler"
	SessionStoreHandler = "sessionStoreHandler"
	MultipartHandler    = "multipartHandler"
)

// Descriptor is the deployment descriptor of the application: which handlers make up its
// handler queue, in order, and how they are configured.
type Descriptor struct {
	Name         string          `yaml:"name"`
	HandlerQueue string          `yaml:"handlerQueue"`
	Handlers     []string        `yaml:"handlers"`
	Multipart    MultipartConfig `yaml:"multipart"`
	SessionStore SessionConfig   `yaml:"sessionStore"`
}

type MultipartConfig struct {
	// MaxContentLength is the largest request body accepted, in bytes. Zero means no limit.
	MaxContentLength int64 `yaml:"maxContentLength"`
}

type SessionConfig struct {
	CookieName           string `yaml:"cookieName"`
	HiddenStoreParameter string `yaml:"hiddenStoreParameter"`
	EncryptionKey        string `yaml:"encryptionKey"`
	EncryptionIV         string `yaml:"encryptionIV"`
}

// BuiltinDescriptor returns one of the descriptors compiled into the program: "old" or "new".
func BuiltinDescriptor(handlerQueue string) (Descriptor, error) {
	switch handlerQueue {
	case servicedef.HandlerQueueOld, servicedef.HandlerQueueNew:
	default:
		return Descriptor{}, fmt.Errorf("unknown handler queue %q", handlerQueue)
	}
	data, err := builtinDescriptors.ReadFile("descriptors/" + handlerQueue + "-handler-queue.yaml")
	if err != nil {
		return Descriptor{}, err
	}
	return ParseDescriptor(data)
}

// LoadDescriptor reads a descriptor file.
func LoadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("error reading descriptor: %w", err)
	}
	return ParseDescriptor(data)
}

func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("failed to unmarshal descriptor: %w", err)
	}
	if err := d.validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// HasHandler returns true if the named handler is part of the queue.
func (d Descriptor) HasHandler(name string) bool {
	for _, h := range d.Handlers {
		if h == name {
			return true
		}
	}
	return false
}

func (d *Descriptor) validate() error {
	if len(d.Handlers) == 0 {
		return fmt.Errorf("descriptor %q has no handlers", d.Name)
	}
	for _, h := range d.Handlers {
		switch h {
		case HTTPErrorHandler, SessionStoreHandler, MultipartHandler:
		default:
			return fmt.Errorf("descriptor %q: unknown handler %q", d.Name, h)
		}
	}
	if d.Multipart.MaxContentLength < 0 {
		return fmt.Errorf("descriptor %q: maxContentLength must not be negative", d.Name)
	}
	if d.HasHandler(SessionStoreHandler) {
		s := &d.SessionStore
		if s.CookieName == "" {
			s.CookieName = "NABLARCH_SID"
		}
		if s.HiddenStoreParameter == "" {
			s.HiddenStoreParameter = hiddenstore.DefaultParameterName
		}
		if _, err := hiddenstore.NewCipher([]byte(s.EncryptionKey), []byte(s.EncryptionIV)); err != nil {
			return fmt.Errorf("descriptor %q: session store: %w", d.Name, err)
		}
	}
	return nil
}
