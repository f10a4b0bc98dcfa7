package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rxmodel/internal/ir"
)

// Load error codes (E001-E009).
const (
	ErrCodeGeneric     = "E001" // generic or unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // cue/load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoModels    = "E008" // sources declare no model
)

// LoadError represents an error that occurred while loading model sources.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadResult holds the compiled models of one load.
type LoadResult struct {
	Models    []*ir.ModelSpec
	FileCount int
}

// LoadDir loads the CUE package in dir and compiles every model in it.
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("models directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing models directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	models, err := compileRoot(value)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Models: models, FileCount: len(files)}, nil
}

// LoadFile compiles a single CUE file.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return LoadSource(path, string(data))
}

// LoadSource compiles CUE source text. filename is used in positions.
func LoadSource(filename, src string) (*LoadResult, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	models, err := compileRoot(value)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Models: models, FileCount: 1}, nil
}

// LoadPaths loads each path as a directory or a single file and
// concatenates the models in argument order.
func LoadPaths(paths []string) (*LoadResult, error) {
	out := &LoadResult{Models: []*ir.ModelSpec{}}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", p)}
		}

		var res *LoadResult
		if info.IsDir() {
			res, err = LoadDir(p)
		} else {
			res, err = LoadFile(p)
		}
		if err != nil {
			return nil, err
		}
		out.Models = append(out.Models, res.Models...)
		out.FileCount += res.FileCount
	}
	return out, nil
}

func compileRoot(value cue.Value) ([]*ir.ModelSpec, error) {
	models, err := CompileModels(value)
	if err != nil {
		return nil, toLoadError(err)
	}
	if len(models) == 0 {
		return nil, &LoadError{Code: ErrCodeNoModels, Message: "no models found"}
	}
	return models, nil
}

func toLoadError(err error) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    ErrCodeGeneric,
			Message: ce.Field + ": " + ce.Message,
			Pos:     ce.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
