package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// tenantGuard scans up migrations and ensures every table carrying an
// organization_id column has row-level security enabled and a policy.
// Exit code 0 = ok, 1 = violation, 2 = other error.
func main() {
	root := "migrations"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	deny, err := scan(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tenant_guard error: %v\n", err)
		os.Exit(2)
	}
	if len(deny) > 0 {
		for _, v := range deny {
			fmt.Fprintf(os.Stderr, "VIOLATION: %s\n", v)
		}
		os.Exit(1)
	}
	fmt.Println("tenant_guard: OK")
}

var (
	reCreate = regexp.MustCompile(`(?is)create\s+table\s+(?:if\s+not\s+exists\s+)?([a-z_][a-z0-9_]*)\s*\((.*?)\n\);`)
	reOrgCol = regexp.MustCompile(`(?im)^\s*organization_id\s+uuid\b`)
	reRLS    = regexp.MustCompile(`(?i)alter\s+table\s+([a-z_][a-z0-9_]*)\s+enable\s+row\s+level\s+security`)
	rePolicy = regexp.MustCompile(`(?i)create\s+policy\s+[a-z_][a-z0-9_]*\s+on\s+([a-z_][a-z0-9_]*)`)
)

func scan(dir string) ([]string, error) {
	var sources []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sources = append(sources, string(raw))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return check(strings.Join(sources, "\n")), nil
}

// check returns one violation per tenant table missing RLS or a policy.
// Migrations are checked together so a later file may enable RLS.
func check(sql string) []string {
	tenantTables := map[string]bool{}
	for _, m := range reCreate.FindAllStringSubmatch(sql, -1) {
		if reOrgCol.MatchString(m[2]) {
			tenantTables[strings.ToLower(m[1])] = true
		}
	}
	rls := map[string]bool{}
	for _, m := range reRLS.FindAllStringSubmatch(sql, -1) {
		rls[strings.ToLower(m[1])] = true
	}
	policies := map[string]bool{}
	for _, m := range rePolicy.FindAllStringSubmatch(sql, -1) {
		policies[strings.ToLower(m[1])] = true
	}

	var violations []string
	for table := range tenantTables {
		if !rls[table] {
			violations = append(violations, table+": row level security not enabled")
		}
		if !policies[table] {
			violations = append(violations, table+": no policy defined")
		}
	}
	sort.Strings(violations)
	return violations
}
