package browser

import "fmt"

// ConfigurationError reports invalid launch configuration, such as a missing
// browser executable or contradictory attach parameters. It is raised before
// any process or connection side effects.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "browser configuration: " + e.Reason
}

// HandshakeError reports that the discovery handshake never yielded a usable
// websocket debugger address. Any process spawned for the attempt has been
// terminated by the time this error is returned.
type HandshakeError struct {
	Attempts int
	Err      error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("browser handshake failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("browser handshake failed after %d attempts", e.Attempts)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
