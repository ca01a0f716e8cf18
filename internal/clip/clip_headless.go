package clip

// headlessProvider is a no-op clipboard provider for environments without a
// display server (headless servers, containers) or platforms this module
// has no native backend for. It never produces Watch events and silently
// discards writes.
type headlessProvider struct {
	watchCh chan struct{}
}

func newHeadless() Provider {
	return &headlessProvider{watchCh: make(chan struct{})}
}

func (p *headlessProvider) Read() (Content, error)    { return Content{Kind: Empty}, nil }
func (p *headlessProvider) Write(Content) error       { return nil }
func (p *headlessProvider) Watch() <-chan struct{}    { return p.watchCh }
func (p *headlessProvider) Close()                    {}
