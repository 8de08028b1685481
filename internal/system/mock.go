package system

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MockExecutor implements CommandExecutor for testing.
type MockExecutor struct {
	mu sync.Mutex

	// Commands records all executed commands for verification.
	Commands []MockCommand

	// Responses maps command patterns to responses. A pattern is matched
	// against the full command line first, then "name arg0", then name.
	Responses map[string]MockResponse

	// DefaultResponse is used when no matching response is found.
	DefaultResponse MockResponse

	// InteractiveErr is returned by ExecuteInteractive if set.
	InteractiveErr error

	// Paths maps binary names to LookPath results. Unlisted names resolve
	// to "/usr/bin/<name>" unless MissingBinaries contains them.
	Paths           map[string]string
	MissingBinaries map[string]bool

	// OnExecute, when set, runs for every non-interactive command before
	// the response is returned. Tests use it to create output files.
	OnExecute func(cmd MockCommand)
}

// MockCommand records an executed command.
type MockCommand struct {
	Name        string
	Args        []string
	Interactive bool
}

// String returns the command line.
func (c MockCommand) String() string {
	return CommandLine(c.Name, c.Args...)
}

// MockResponse defines the response for a command.
type MockResponse struct {
	Output []byte
	Err    error
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Commands:        make([]MockCommand, 0),
		Responses:       make(map[string]MockResponse),
		Paths:           make(map[string]string),
		MissingBinaries: make(map[string]bool),
	}
}

// AddResponse adds a response for a specific command pattern.
func (m *MockExecutor) AddResponse(pattern string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[pattern] = MockResponse{Output: output, Err: err}
}

func (m *MockExecutor) respond(name string, args []string) MockResponse {
	m.mu.Lock()
	cmd := MockCommand{Name: name, Args: args}
	m.Commands = append(m.Commands, cmd)
	hook := m.OnExecute

	resp, ok := m.Responses[cmd.String()]
	if !ok && len(args) > 0 {
		resp, ok = m.Responses[name+" "+args[0]]
	}
	if !ok {
		resp, ok = m.Responses[name]
	}
	if !ok {
		resp = m.DefaultResponse
	}
	m.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return resp
}

func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	resp := m.respond(name, args)
	return resp.Output, resp.Err
}

func (m *MockExecutor) ExecuteStreaming(ctx context.Context, w io.Writer, name string, args ...string) error {
	resp := m.respond(name, args)
	if len(resp.Output) > 0 && w != nil {
		if _, err := w.Write(resp.Output); err != nil {
			return err
		}
	}
	return resp.Err
}

func (m *MockExecutor) ExecuteInteractive(ctx context.Context, name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args, Interactive: true})
	return m.InteractiveErr
}

func (m *MockExecutor) LookPath(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MissingBinaries[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	if p, ok := m.Paths[name]; ok {
		return p, nil
	}
	return "/usr/bin/" + name, nil
}

// LastCommand returns the most recently executed command.
func (m *MockExecutor) LastCommand() (MockCommand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return MockCommand{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// CommandLines returns every recorded command rendered as a string.
func (m *MockExecutor) CommandLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, len(m.Commands))
	for i, c := range m.Commands {
		lines[i] = c.String()
	}
	return lines
}

// Reset clears all recorded commands.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = make([]MockCommand, 0)
}
