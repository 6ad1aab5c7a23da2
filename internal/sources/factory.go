package sources

import (
	"fmt"
	"time"

	"github.com/stacklok/toolhive-registry-bridge/internal/config"
	"github.com/stacklok/toolhive-registry-bridge/internal/httpclient"
)

// SourceFactory creates sources from channel configuration
type SourceFactory interface {
	// CreateSource creates the source configured for the channel
	CreateSource(ch *config.ChannelConfig) (Source, error)
}

// defaultSourceFactory is the default implementation of SourceFactory
type defaultSourceFactory struct {
	newClient func(timeout time.Duration) httpclient.Client
}

var _ SourceFactory = (*defaultSourceFactory)(nil)

// NewSourceFactory creates a new source factory
func NewSourceFactory() SourceFactory {
	return &defaultSourceFactory{newClient: httpclient.NewDefaultClient}
}

// CreateSource creates a source for the channel's configured source type
func (f *defaultSourceFactory) CreateSource(ch *config.ChannelConfig) (Source, error) {
	if ch == nil {
		return nil, fmt.Errorf("channel configuration cannot be nil")
	}

	switch ch.GetType() {
	case config.SourceTypeEureka:
		return NewEurekaSource(ch.Name, ch.Eureka.Endpoint, f.newClient(ch.GetPullTimeout())), nil
	case config.SourceTypeFile:
		return NewFileSource(ch.Name, ch.File.Path), nil
	default:
		return nil, fmt.Errorf("unsupported source type for channel %s", ch.Name)
	}
}
