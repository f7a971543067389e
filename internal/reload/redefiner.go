package reload

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"
)

// Definition is the current content of one compiled artifact.
type Definition struct {
	Path string
	Code []byte
}

// Redefiner swaps loaded code for new bytes. A call is all or nothing.
type Redefiner interface {
	Redefine(ctx context.Context, definitions []Definition) error
}

type RedefinerFunc func(ctx context.Context, definitions []Definition) error

func (f RedefinerFunc) Redefine(ctx context.Context, definitions []Definition) error {
	return f(ctx, definitions)
}

// CommandRedefiner delegates to an external program, appending the artifact
// paths to its arguments. A non-zero exit is a failed redefinition.
type CommandRedefiner struct {
	argv []string
}

func NewCommandRedefiner(command string) (*CommandRedefiner, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid redefinition command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("redefinition command is empty")
	}
	return &CommandRedefiner{argv: argv}, nil
}

func (r *CommandRedefiner) Redefine(ctx context.Context, definitions []Definition) error {
	if len(definitions) == 0 {
		return nil
	}
	args := append([]string{}, r.argv[1:]...)
	for _, def := range definitions {
		args = append(args, def.Path)
	}
	cmd := exec.CommandContext(ctx, r.argv[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if output := strings.TrimSpace(string(out)); output != "" {
			return fmt.Errorf("%s: %w: %s", r.argv[0], err, output)
		}
		return fmt.Errorf("%s: %w", r.argv[0], err)
	}
	log.Debug().Str("command", r.argv[0]).Int("count", len(definitions)).Msg("Redefinition command succeeded")
	return nil
}

// LogRedefiner only reports what it would redefine.
type LogRedefiner struct{}

func (LogRedefiner) Redefine(_ context.Context, definitions []Definition) error {
	for _, def := range definitions {
		log.Info().Str("path", def.Path).Int("bytes", len(def.Code)).Msg("Redefining")
	}
	return nil
}
