package fetch

// NetworkExchange is one observed request/response pair.
type NetworkExchange struct {
	URL         string
	Status      int
	ContentType string
}

// ConsoleMessage is one browser console entry observed during rendering.
type ConsoleMessage struct {
	Level string
	Text  string
}

// Outcome is the result of a successful fetch. Produced once, never mutated
// afterwards; the PreReturn hook is the last writer.
type Outcome struct {
	HTML      string
	Exchanges []NetworkExchange
	Console   []ConsoleMessage
	Meta      map[string]any
}

// Hooks are optional caller-supplied observation callbacks. Every hook runs
// synchronously on the fetching goroutine, so caller accumulators are
// consistent once Fetch returns.
type Hooks struct {
	OnRequest  func(url string)
	OnResponse func(ex NetworkExchange)
	OnConsole  func(msg ConsoleMessage)
	OnReady    func()
	PreReturn  func(out *Outcome)
	OnError    func(err error, attempt int)
}
