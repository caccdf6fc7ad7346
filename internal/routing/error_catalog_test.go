package routing

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type catalogEntry struct {
	Code    string `yaml:"code"`
	Status  int    `yaml:"status"`
	Message string `yaml:"message"`
}

// errorUse is one place in handler code that writes an error code.
type errorUse struct {
	code   string
	status int
	at     string
}

// Argument positions of status and code. Package-local helpers drop the route
// class argument.
var errorWriters = map[string]struct{ status, code int }{
	"WriteError":        {status: 3, code: 4},
	"WriteErrorDetails": {status: 3, code: 4},
	"writeError":        {status: 2, code: 3},
	"writeErrorDetails": {status: 2, code: 3},
}

func TestErrorCatalog_MatchesHandlers(t *testing.T) {
	root := repoRoot(t)
	catalog := loadErrorCatalog(t, root)
	uses := collectErrorUses(t, root, "internal", "modules")
	if len(uses) == 0 {
		t.Fatal("no error writes found")
	}

	var problems []string
	written := map[string]bool{}
	for _, u := range uses {
		entry, ok := catalog[u.code]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: %s is not in the catalog", u.at, u.code))
			continue
		}
		written[u.code] = true
		if u.status != 0 && u.status != entry.Status {
			problems = append(problems, fmt.Sprintf("%s: %s written as %d, catalog says %d", u.at, u.code, u.status, entry.Status))
		}
	}
	for code := range catalog {
		if !written[code] {
			problems = append(problems, "catalog code never written: "+code)
		}
	}
	slices.Sort(problems)
	if len(problems) > 0 {
		t.Fatalf("error catalog drift:\n%s", strings.Join(problems, "\n"))
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for dir := wd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		if filepath.Dir(dir) == dir {
			t.Fatalf("no go.mod above %s", wd)
		}
	}
}

func loadErrorCatalog(t *testing.T, root string) map[string]catalogEntry {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, "config/errors/catalog.yaml"))
	if err != nil {
		t.Fatalf("read catalog: %v", err)
	}
	var file struct {
		Errors []catalogEntry `yaml:"errors"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	if len(file.Errors) == 0 {
		t.Fatal("catalog is empty")
	}
	out := make(map[string]catalogEntry, len(file.Errors))
	for _, e := range file.Errors {
		switch {
		case strings.TrimSpace(e.Code) == "":
			t.Fatal("catalog contains empty code")
		case e.Status < 400 || e.Status > 599:
			t.Fatalf("catalog %s: status=%d", e.Code, e.Status)
		case strings.TrimSpace(e.Message) == "":
			t.Fatalf("catalog %s: empty message", e.Code)
		}
		if _, dup := out[e.Code]; dup {
			t.Fatalf("catalog lists %s twice", e.Code)
		}
		out[e.Code] = e
	}
	return out
}

// collectErrorUses finds error writes in non-test Go files: calls to the
// writer helpers and {status, code} literals such as kind-to-status tables.
func collectErrorUses(t *testing.T, root string, dirs ...string) []errorUse {
	t.Helper()

	statuses := httpStatusConstants()
	fset := token.NewFileSet()
	var out []errorUse
	for _, dir := range dirs {
		err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return err
			}
			f, err := parser.ParseFile(fset, path, nil, 0)
			if err != nil {
				return err
			}
			ast.Inspect(f, func(n ast.Node) bool {
				switch x := n.(type) {
				case *ast.CallExpr:
					pos, ok := errorWriters[calleeName(x.Fun)]
					if !ok || len(x.Args) <= pos.code {
						return true
					}
					if code := stringLit(x.Args[pos.code]); code != "" {
						out = append(out, errorUse{code: code, status: statusOf(x.Args[pos.status], statuses), at: fset.Position(x.Pos()).String()})
					}
				case *ast.CompositeLit:
					var use errorUse
					for _, el := range x.Elts {
						kv, ok := el.(*ast.KeyValueExpr)
						if !ok {
							continue
						}
						switch key, _ := kv.Key.(*ast.Ident); {
						case key == nil:
						case key.Name == "code":
							use.code = stringLit(kv.Value)
						case key.Name == "status":
							use.status = statusOf(kv.Value, statuses)
						}
					}
					if use.code != "" && use.status != 0 {
						use.at = fset.Position(x.Pos()).String()
						out = append(out, use)
					}
				}
				return true
			})
			return nil
		})
		if err != nil {
			t.Fatalf("scan %s: %v", dir, err)
		}
	}
	return out
}

func calleeName(fn ast.Expr) string {
	switch x := fn.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		return x.Sel.Name
	}
	return ""
}

func stringLit(expr ast.Expr) string {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return ""
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// statusOf resolves http.StatusXxx selectors and integer literals; anything
// else is 0.
func statusOf(expr ast.Expr, statuses map[string]int) int {
	switch x := expr.(type) {
	case *ast.SelectorExpr:
		if pkg, ok := x.X.(*ast.Ident); ok && pkg.Name == "http" {
			return statuses[x.Sel.Name]
		}
	case *ast.BasicLit:
		if n, err := strconv.Atoi(x.Value); err == nil {
			return n
		}
	}
	return 0
}

// httpStatusConstants derives net/http constant names from status texts,
// e.g. "Bad Gateway" -> StatusBadGateway.
func httpStatusConstants() map[string]int {
	clean := strings.NewReplacer(" ", "", "-", "", "'", "")
	out := map[string]int{}
	for code := 100; code < 600; code++ {
		if text := http.StatusText(code); text != "" {
			out["Status"+clean.Replace(text)] = code
		}
	}
	return out
}
