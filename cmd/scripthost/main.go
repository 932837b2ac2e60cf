package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/scripthost-io/scripthost/deferred"
	"github.com/scripthost-io/scripthost/host"
	"github.com/scripthost-io/scripthost/manifest"
	"github.com/scripthost-io/scripthost/variant"
)

func main() {
	var (
		pluginFile   = flag.String("plugin", "", "Path to plugin wasm file")
		manifestFile = flag.String("manifest", "", "Path to plugin manifest (YAML)")
		callName     = flag.String("call", "", "Method to call (optional)")
		argList      = flag.String("args", "", "Call arguments (comma-separated)")
		getName      = flag.String("get", "", "Property to read")
		setPair      = flag.String("set", "", "Property to write (name=value)")
		list         = flag.Bool("list", false, "List manifest members and exit")
		pumps        = flag.Int("pump", 1, "Pump ticks to drive pending calls")
		watch        = flag.Bool("watch", false, "Watch the manifest and report reloads")
		verbose      = flag.Bool("v", false, "Verbose logging")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *pluginFile == "" || *manifestFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: scripthost -plugin <file.wasm> -manifest <file.yaml> [-call name -args a,b] [-get name] [-set name=value]")
		fmt.Fprintln(os.Stderr, "       scripthost -plugin <file.wasm> -manifest <file.yaml> -list")
		fmt.Fprintln(os.Stderr, "       scripthost -plugin <file.wasm> -manifest <file.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		host.SetLogger(logger)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*pluginFile, *manifestFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*pluginFile, *manifestFile, *callName, *argList, *getName, *setPair, *list, *pumps, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(pluginFile, manifestFile, callName, argList, getName, setPair string, listOnly bool, pumps int, watch bool) error {
	ctx := context.Background()

	m, err := manifest.Load(manifestFile)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	fmt.Printf("Plugin: %s %s (namespace %s)\n", m.Name, m.Version, m.Namespace)
	fmt.Printf("Methods: %d\n", len(m.Methods))
	fmt.Printf("Properties: %d\n", len(m.Properties))

	if listOnly {
		fmt.Printf("\nMembers:\n")
		printMembers(m)
		return nil
	}

	data, err := os.ReadFile(pluginFile)
	if err != nil {
		return fmt.Errorf("read plugin: %w", err)
	}

	rt, err := host.New(ctx, &host.Options{MemoryLimitPages: m.Limits.MemoryPages})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	plug, err := rt.Load(ctx, data, m)
	if err != nil {
		return fmt.Errorf("load plugin: %w", err)
	}

	fmt.Printf("\nInstantiating plugin...\n")
	inst, err := plug.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	if setPair != "" {
		name, raw, ok := strings.Cut(setPair, "=")
		if !ok {
			return fmt.Errorf("set wants name=value, got %q", setPair)
		}
		p, found := m.Property(name)
		if !found {
			return fmt.Errorf("property %q not in manifest", name)
		}
		if err := inst.Set(ctx, name, variant.New(convertArg(raw, p.Type))); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		fmt.Printf("Set %s = %s\n", name, raw)
	}

	if getName != "" {
		v, err := settle(ctx, inst, pumps, inst.Get(ctx, getName))
		if err != nil {
			return fmt.Errorf("get %s: %w", getName, err)
		}
		fmt.Printf("%s = %s\n", getName, v)
	}

	if callName != "" {
		mm, found := m.Method(callName)
		if !found {
			return fmt.Errorf("method %q not in manifest", callName)
		}

		fmt.Printf("\nCalling %s...\n", callName)
		v, err := settle(ctx, inst, pumps, inst.Invoke(ctx, callName, splitArgs(argList, mm)))
		if err != nil {
			return fmt.Errorf("call %s: %w", callName, err)
		}
		fmt.Printf("Result: %s\n", v)
	}

	if watch {
		return watchManifest(manifestFile)
	}
	return nil
}

func printMembers(m *manifest.Manifest) {
	for _, method := range m.Methods {
		var params []string
		for _, p := range method.Params {
			params = append(params, p.Name+": "+p.Type)
		}
		line := fmt.Sprintf("  %s(%s)", method.Name, strings.Join(params, ", "))
		if method.Result != "" {
			line += " -> " + method.Result
		}
		if method.Zone > 0 {
			line += fmt.Sprintf("  [zone %d]", method.Zone)
		}
		fmt.Println(line)
	}
	for _, p := range m.Properties {
		line := fmt.Sprintf("  %s: %s", p.Name, p.Type)
		if p.ReadOnly {
			line += " (read-only)"
		}
		if p.Zone > 0 {
			line += fmt.Sprintf("  [zone %d]", p.Zone)
		}
		fmt.Println(line)
	}
}

// settle drains a handle, pumping the guest while the call is still
// pending.
func settle(ctx context.Context, inst *host.Instance, pumps int, h deferred.Handle[variant.Variant]) (variant.Variant, error) {
	var (
		out     variant.Variant
		callErr error
		done    bool
	)
	h.Done(func(v variant.Variant) {
		out = v
		done = true
	}).Fail(func(err error) {
		callErr = err
		done = true
	})

	for i := 0; !done && i < pumps; i++ {
		if err := inst.Pump(ctx); err != nil {
			return out, err
		}
	}
	if !done {
		return out, fmt.Errorf("still pending after %d pump(s)", pumps)
	}
	return out, callErr
}

func splitArgs(argList string, m manifest.Method) variant.List {
	if argList == "" {
		return nil
	}

	parts := strings.Split(argList, ",")
	vals := make([]any, len(parts))
	for i, part := range parts {
		typ := "variant"
		if i < len(m.Params) {
			typ = m.Params[i].Type
		}
		vals[i] = convertArg(strings.TrimSpace(part), typ)
	}
	return variant.MakeList(vals...)
}

// convertArg turns a command-line string into the declared parameter
// type.
func convertArg(value, typ string) any {
	switch typ {
	case "bool":
		return value == "true" || value == "1"
	case "int":
		v, _ := strconv.ParseInt(value, 10, 64)
		return v
	case "uint":
		v, _ := strconv.ParseUint(value, 10, 64)
		return v
	case "float":
		v, _ := strconv.ParseFloat(value, 64)
		return v
	case "date":
		return variant.Date(value)
	default:
		return value
	}
}

func watchManifest(path string) error {
	fmt.Printf("\nWatching %s (ctrl+c to stop)\n", path)

	w, err := manifest.NewWatcher(path, manifest.DefaultDebounce, func(m *manifest.Manifest, err error) {
		if err != nil {
			fmt.Printf("reload failed: %v\n", err)
			return
		}
		fmt.Printf("manifest reloaded: %s %s, %d member(s)\n", m.Name, m.Version, len(m.MemberNames()))
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	return nil
}
