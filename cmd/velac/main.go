/*
Velac compiles Vela source files to optimized IR.

It runs the full pipeline (lex, parse, resolve, infer, lifetime and borrow
check, lower to SSA, optimize) over each input file and writes the encoded
IR module next to the source, or prints the diagnostics that stopped it.
With no input files it starts an interactive check session that reads
snippets from stdin and reports their diagnostics.

Usage:

	velac [flags] [file ...]

The flags are:

	-v, --version
		Give the current version of velac and then exit.

	-O, --opt LEVEL
		Optimization level, 0 through 3. Defaults to 2.

	-c, --config FILE
		Read configuration from the given TOML file. Flags given on the
		command line take precedence over the file.

	-s, --strict
		Treat unresolved type variables at the end of inference as errors.

	--no-elide
		Disable single-input-reference lifetime elision.

	--no-validate
		Skip IR validation after lowering and optimization.

	--emit-ir
		Print the optimized IR listing to stdout instead of writing the
		encoded module.
*/
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dekarrin/vela"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/pipeline"
	"github.com/dekarrin/vela/internal/version"
	"github.com/spf13/pflag"
)

const (

	// ExitSuccess indicates a successful program execution.
	ExitSuccess = iota

	// ExitCompileError indicates an unsuccessful program execution due to
	// errors in the compiled source.
	ExitCompileError

	// ExitInitError indicates an unsuccessful program execution due to an
	// issue setting the compiler up.
	ExitInitError
)

var (
	returnCode    int     = ExitSuccess
	flagVersion   *bool   = pflag.BoolP("version", "v", false, "Gives the version info")
	optLevel      *int    = pflag.IntP("opt", "O", 2, "Optimization level, 0-3")
	configFile    *string = pflag.StringP("config", "c", "", "TOML configuration file")
	strictInfer   *bool   = pflag.BoolP("strict", "s", false, "Unresolved type variables become errors")
	noElide       *bool   = pflag.Bool("no-elide", false, "Disable lifetime elision")
	noValidate    *bool   = pflag.Bool("no-validate", false, "Skip IR validation")
	emitIR        *bool   = pflag.Bool("emit-ir", false, "Print the optimized IR listing instead of encoding it")
)

func main() {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			// we are panicking, make sure we dont lose the panic just because
			// we checked
			panic(fmt.Sprintf("unrecoverable panic occured: %v", panicErr))
		} else {
			os.Exit(returnCode)
		}
	}()

	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s\n", version.Current)
		return
	}

	cfg := pipeline.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = pipeline.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			returnCode = ExitInitError
			return
		}
	}
	if pflag.CommandLine.Changed("opt") || *configFile == "" {
		cfg.OptLevel = *optLevel
	}
	if *strictInfer {
		cfg.Strict = true
	}
	if *noElide {
		cfg.Elision = false
	}
	if *noValidate {
		cfg.ValidateIR = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		returnCode = ExitInitError
		return
	}

	if pflag.NArg() == 0 {
		returnCode = runInteractive(cfg)
		return
	}

	for _, path := range pflag.Args() {
		if !compileFile(cfg, path) {
			returnCode = ExitCompileError
		}
	}
}

func compileFile(cfg pipeline.Config, path string) bool {
	c, err := vela.New(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return false
	}
	mod, err := c.CompileFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return false
	}
	if mod == nil {
		return false
	}

	if *emitIR {
		fmt.Print(mod.String())
		return true
	}

	out := strings.TrimSuffix(path, ".vl") + ".vir"
	if err := os.WriteFile(out, ir.Encode(mod), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return false
	}
	return true
}

// runInteractive reads one snippet per line from stdin and compiles it,
// printing its diagnostics, and with --emit-ir the IR listing of a snippet
// that compiled. Blank lines are skipped; a line reading quit or exit, or
// EOF, ends the session.
func runInteractive(cfg pipeline.Config) int {
	rl, err := readline.New("vela> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return ExitInitError
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			return ExitSuccess
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == "quit" || strings.TrimSpace(line) == "exit" {
			return ExitSuccess
		}

		c, err := vela.New(cfg, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return ExitInitError
		}
		if mod := c.CompileSource("<repl>", line); mod != nil && *emitIR {
			fmt.Print(mod.String())
		}
	}
}
