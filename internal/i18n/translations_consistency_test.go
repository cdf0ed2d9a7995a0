package i18n

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"testing"

	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/ngguard/resources"
)

func TestTranslationsKeysAreUsedAndComplete(t *testing.T) {
	t.Parallel()

	used, err := collectUsedI18nKeys()
	if err != nil {
		t.Fatalf("collect used i18n keys: %v", err)
	}

	defined, err := collectDefinedI18nKeys()
	if err != nil {
		t.Fatalf("collect defined i18n keys: %v", err)
	}

	missing := difference(used, defined)
	if len(missing) > 0 {
		t.Fatalf("missing translation keys:\n%s", strings.Join(missing, "\n"))
	}

	unused := difference(defined, used)
	if len(unused) > 0 {
		t.Fatalf("unused translation keys:\n%s", strings.Join(unused, "\n"))
	}
}

func TestTranslationsCoverSupportedLocales(t *testing.T) {
	t.Parallel()

	dict, err := loadTranslationsDict()
	if err != nil {
		t.Fatalf("load translations dict: %v", err)
	}

	for key, translations := range dict {
		for code := range languageNames {
			if code == "en" {
				continue
			}
			value, ok := translations[strings.ToUpper(code)]
			if !ok || strings.TrimSpace(value) == "" {
				t.Fatalf("missing %s translation for key %q", code, key)
			}
			if strings.Count(value, "%") != strings.Count(key, "%") {
				t.Fatalf("format verbs differ for key %q in %s", key, code)
			}
		}
	}
}

func TestGetFallsBackToKey(t *testing.T) {
	t.Parallel()

	if got := Get("no such key anywhere", "ru"); got != "no such key anywhere" {
		t.Fatalf("unexpected fallback %q", got)
	}
	if got := Get("Back", "en"); got != "Back" {
		t.Fatalf("english must return key, got %q", got)
	}
	if got := Get("Back", "RU"); got == "Back" {
		t.Fatalf("expected russian translation for Back")
	}
}

func collectUsedI18nKeys() ([]string, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}

	internalDir := filepath.Join(root, "internal")
	fileSet := token.NewFileSet()
	keys := make(map[string]struct{})

	err = filepath.WalkDir(internalDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(fileSet, path, nil, parser.SkipObjectResolution)
		if err != nil {
			return err
		}

		ast.Inspect(node, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			selector, ok := call.Fun.(*ast.SelectorExpr)
			if !ok || selector.Sel == nil || (selector.Sel.Name != "Get" && selector.Sel.Name != "N") {
				return true
			}
			pkgIdent, ok := selector.X.(*ast.Ident)
			if !ok || pkgIdent.Name != "i18n" {
				return true
			}
			if len(call.Args) < 1 {
				return true
			}
			value, ok := stringLiteralValue(call.Args[0])
			if !ok || value == "" {
				return true
			}
			keys[value] = struct{}{}
			return true
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(keys))
	for key := range keys {
		result = append(result, key)
	}
	sort.Strings(result)
	return result, nil
}

func collectDefinedI18nKeys() ([]string, error) {
	dict, err := loadTranslationsDict()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(dict))
	for key := range dict {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func loadTranslationsDict() (map[string]map[string]string, error) {
	content, err := resources.FS.ReadFile(translationsPath)
	if err != nil {
		return nil, err
	}
	dict := map[string]map[string]string{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return nil, err
	}
	return dict, nil
}

func difference(left, right []string) []string {
	rightSet := make(map[string]struct{}, len(right))
	for _, item := range right {
		rightSet[item] = struct{}{}
	}
	diff := make([]string, 0)
	for _, item := range left {
		if _, ok := rightSet[item]; !ok {
			diff = append(diff, item)
		}
	}
	return diff
}

func stringLiteralValue(expr ast.Expr) (string, bool) {
	basic, ok := expr.(*ast.BasicLit)
	if !ok || basic.Kind != token.STRING {
		return "", false
	}
	value, err := strconv.Unquote(basic.Value)
	if err != nil {
		return "", false
	}
	return value, true
}

func repoRoot() (string, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime caller is unavailable")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(currentFile), "..", "..")), nil
}
