// Command lumen is the reference CLI for the lumen runtime: a REPL, a
// source/bytecode runner, a source-to-bytecode compiler, and a
// disassembler, in the shape of the teacher's cmd/smog driver.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/lumenlang/lumen/pkg/bytecode"
	"github.com/lumenlang/lumen/pkg/compiler"
	"github.com/lumenlang/lumen/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("lumen version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "compile":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: lumen compile <input.lm> [output.lc]")
			os.Exit(1)
		}
		outputFile := ""
		if len(os.Args) >= 4 {
			outputFile = os.Args[3]
		}
		compileFile(os.Args[2], outputFile)
	case "disassemble", "disasm":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: lumen disassemble <file.lm|file.lc>")
			os.Exit(1)
		}
		disassembleFile(os.Args[2])
	default:
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("lumen - a small class-based scripting runtime")
	fmt.Println("\nUsage:")
	fmt.Println("  lumen                       Start interactive REPL")
	fmt.Println("  lumen [file]                Run a .lm or .lc file")
	fmt.Println("  lumen run [file]            Run a .lm or .lc file")
	fmt.Println("  lumen compile <in> [out]    Compile .lm to .lc bytecode")
	fmt.Println("  lumen disassemble <file>    Disassemble a .lm or .lc file")
	fmt.Println("  lumen repl                  Start interactive REPL")
	fmt.Println("  lumen version               Show version")
	fmt.Println("  lumen help                  Show this help")
	fmt.Println("\nFile extensions:")
	fmt.Println("  .lm   Source code (text)")
	fmt.Println("  .lc   Compiled bytecode (binary)")
}

// newCLIVM builds a VM wired to the compiler, stdout/stderr, and a
// filesystem module loader rooted at baseDir.
func newCLIVM(baseDir string) *vm.VM {
	loader := newFileModuleLoader(baseDir)
	return vm.NewVM(vm.Config{
		Compile:    compiler.Compile,
		LoadModule: loader.Load,
		Write: func(text string) {
			fmt.Print(text)
		},
		Error: func(errType vm.ErrorType, module string, line int, message string) {
			switch errType {
			case vm.ErrorCompile:
				fmt.Fprintf(os.Stderr, "[%s line %d] Compile error: %s\n", module, line, message)
			case vm.ErrorRuntime:
				fmt.Fprintf(os.Stderr, "%s\n", message)
			case vm.ErrorStackTrace:
				fmt.Fprintf(os.Stderr, "[%s line %d] in %s\n", module, line, message)
			}
		},
		InitialHeapSize:   1 << 20,
		MinHeapSize:       1 << 16,
		HeapGrowthPercent: 50,
	})
}

// fileModuleLoader resolves an imported module name to source text by
// reading <baseDir>/<name>.lm off disk, caching decoded source behind a
// bounded LRU so repeatedly imported modules (a shared utility module
// pulled in from several scripts) don't re-hit the filesystem on every
// LOAD_MODULE. The cache is sized small deliberately: it exists to absorb
// repeat imports within one run, not to cache a whole project's sources.
type fileModuleLoader struct {
	baseDir string
	cache   *lru.Cache
}

func newFileModuleLoader(baseDir string) *fileModuleLoader {
	cache, err := lru.New(64)
	if err != nil {
		panic(fmt.Errorf("lumen: building module cache: %w", err))
	}
	return &fileModuleLoader{baseDir: baseDir, cache: cache}
}

func (l *fileModuleLoader) Load(name string) (string, bool) {
	if cached, ok := l.cache.Get(name); ok {
		return cached.(string), true
	}
	path := filepath.Join(l.baseDir, filepath.FromSlash(name)+".lm")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	source := string(data)
	l.cache.Add(name, source)
	return source, true
}

func runFile(filename string) {
	ext := filepath.Ext(filename)
	if ext == ".lc" {
		runBytecodeFile(filename)
		return
	}
	runSourceFile(filename)
}

func runSourceFile(filename string) {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	v := newCLIVM(filepath.Dir(filename))
	result, err := v.Interpret(filename, string(data))
	if result != vm.ResultSuccess {
		os.Exit(1)
	}
	_ = err
}

// runBytecodeFile loads a pre-compiled .lc file and runs it directly,
// skipping the lex/parse/compile pipeline entirely.
func runBytecodeFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	fn, err := bytecode.Decode(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(1)
	}

	v := newCLIVM(filepath.Dir(filename))
	result, err := v.InterpretCompiled(filename, fn)
	if result != vm.ResultSuccess {
		os.Exit(1)
	}
	_ = err
}

func compileFile(inputFile, outputFile string) {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".lm" {
			outputFile = inputFile[:len(inputFile)-len(".lm")] + ".lc"
		} else {
			outputFile = inputFile + ".lc"
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	v := newCLIVM(filepath.Dir(inputFile))
	fn, err := v.CompileOnly(inputFile, string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		os.Exit(1)
	}

	outFile, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	if err := bytecode.Encode(fn, outFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
}

func disassembleFile(filename string) {
	v := newCLIVM(filepath.Dir(filename))

	var fn *bytecode.Function
	if filepath.Ext(filename) == ".lc" {
		file, err := os.Open(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		defer file.Close()
		fn, err = bytecode.Decode(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
			os.Exit(1)
		}
	} else {
		data, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		fn, err = v.CompileOnly(filename, string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Print(v.Disassemble(fn))
}

func runREPL() {
	v := newCLIVM(".")
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Printf("lumen %s\n", version)
	var buf strings.Builder
	line := 0
	for {
		if buf.Len() == 0 {
			fmt.Print("> ")
		} else {
			fmt.Print("  ")
		}
		if !scanner.Scan() {
			return
		}
		buf.WriteString(scanner.Text())
		buf.WriteString("\n")
		line++

		source := buf.String()
		sourcePath := fmt.Sprintf("<repl:%d>", line)
		result, _ := v.Interpret(sourcePath, source)
		if result != vm.ResultCompileError || !strings.Contains(source, "{") {
			buf.Reset()
		}
	}
}
