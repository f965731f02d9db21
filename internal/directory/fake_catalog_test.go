package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/catalog"
)

// fakeCatalog is an in-memory stand-in for the catalog service. It
// reproduces the behaviours the domain layer depends on: name uniqueness
// with the exact validation messages, paginated search with a fuzzy author
// match (prefix, like a tokenizing index), tag facets, and memberships.
//
// Like the real catalog it is multi-writer: two sessions mutating it
// concurrently-in-spirit will happily create conflicting records, which is
// exactly what the consistency tests need.
type fakeCatalog struct {
	seq int

	users     map[string]catalog.Record // by id
	userNames map[string]string         // login -> id
	apiKeys   map[string]string         // api key -> user id

	orgs     map[string]catalog.Record // by id
	orgNames map[string]string         // name -> id
	orgOrder []string

	packages map[string]catalog.Record // by id
	pkgNames map[string]string         // name -> id
	pkgOrder []string

	members map[string]map[string]string // org id -> user id -> role
	groups  map[string]map[string]bool   // group name -> user id set

	takenNames map[string]bool // names rejected as in use even if unknown
	calls      int
}

func newFakeCatalog() *fakeCatalog {
	f := &fakeCatalog{
		users:      map[string]catalog.Record{},
		userNames:  map[string]string{},
		apiKeys:    map[string]string{},
		orgs:       map[string]catalog.Record{},
		orgNames:   map[string]string{},
		packages:   map[string]catalog.Record{},
		pkgNames:   map[string]string{},
		members:    map[string]map[string]string{},
		groups:     map[string]map[string]bool{},
		takenNames: map[string]bool{},
	}
	f.seedUser("admin", "admin@catalog.example", "Catalog Admin")
	f.apiKeys["admin-key"] = f.userNames["admin"]
	f.users[f.userNames["admin"]]["apikey"] = "admin-key"
	f.seedOrg("lut", "Lappeenranta University of Technology", "University")
	f.seedOrg("but", "Brno University of Technology", "University")
	f.seedOrg("acme", "Acme Corp", "Company")
	return f
}

func (f *fakeCatalog) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeCatalog) seedUser(login, email, fullname string) catalog.Record {
	id := f.nextID("user")
	rec := catalog.Record{
		"id":           id,
		"name":         login,
		"email":        email,
		"fullname":     fullname,
		"display_name": fullname,
		"about":        nil,
		"apikey":       "key-" + id,
		"state":        "active",
	}
	f.users[id] = rec
	f.userNames[login] = id
	f.apiKeys["key-"+id] = id
	return rec
}

func (f *fakeCatalog) seedOrg(name, title, category string) catalog.Record {
	id := f.nextID("org")
	rec := catalog.Record{
		"id":                id,
		"name":              name,
		"title":             title,
		"display_name":      title,
		"description":       "",
		"image_display_url": "",
		"extras": []any{
			map[string]any{"key": "Category", "value": category},
		},
	}
	f.orgs[id] = rec
	f.orgNames[name] = id
	f.orgOrder = append(f.orgOrder, id)
	f.members[id] = map[string]string{}
	return rec
}

// admin returns the administrator session.
func (f *fakeCatalog) admin() catalog.Invoker { return f.view("admin-key") }

func (f *fakeCatalog) view(apiKey string) catalog.Invoker {
	return &fakeView{cat: f, apiKey: apiKey}
}

type fakeView struct {
	cat    *fakeCatalog
	apiKey string
}

func (v *fakeView) WithAPIKey(key string) catalog.Invoker { return v.cat.view(key) }

func (v *fakeView) Call(_ context.Context, action string, params catalog.Params) (catalog.Record, error) {
	return v.cat.call(v.apiKey, action, normalize(params))
}

func (v *fakeView) Upload(_ context.Context, action string, params catalog.Params, filename string, file io.Reader) (catalog.Record, error) {
	params = normalize(params)
	v.cat.calls++
	switch action {
	case "resource_create":
		pkg, ok := v.cat.packages[fmt.Sprint(params["package_id"])]
		if !ok {
			return nil, apperror.NotFound("package", fmt.Sprint(params["package_id"]))
		}
		content, _ := io.ReadAll(file)
		resource := map[string]any{
			"id":          v.cat.nextID("resource"),
			"name":        params["name"],
			"description": params["description"],
			"filename":    filename,
			"size":        float64(len(content)),
		}
		resources, _ := pkg["resources"].([]any)
		pkg["resources"] = append(resources, resource)
		return copyRecord(catalog.Record(resource)), nil
	case "organization_patch":
		org, ok := v.cat.orgs[fmt.Sprint(params["id"])]
		if !ok {
			return nil, apperror.NotFound("organization", fmt.Sprint(params["id"]))
		}
		org["image_display_url"] = "https://files.catalog.example/" + filename
		return copyRecord(org), nil
	default:
		return nil, apperror.Transport(action, fmt.Errorf("fake catalog: unsupported upload action"))
	}
}

// normalize pushes params through a JSON round trip so nested values take
// the exact shape a decoded HTTP response would have.
func normalize(params catalog.Params) catalog.Params {
	if params == nil {
		return catalog.Params{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	var out catalog.Params
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func copyRecord(rec catalog.Record) catalog.Record {
	raw, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	var out catalog.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func (f *fakeCatalog) call(apiKey, action string, params catalog.Params) (catalog.Record, error) {
	f.calls++
	switch action {
	case "user_show":
		return f.userShow(params)
	case "user_create":
		return f.userCreate(params)
	case "user_update":
		return f.userUpdate(params)
	case "user_delete":
		return f.userDelete(params)
	case "organization_show":
		return f.orgShow(params)
	case "organization_create":
		return f.orgCreate(apiKey, params)
	case "organization_patch":
		return f.orgPatch(params)
	case "organization_list":
		return f.orgList(), nil
	case "organization_list_for_user":
		return f.orgListForUser(apiKey, params)
	case "organization_member_create":
		return f.orgMemberCreate(params)
	case "group_member_create":
		return f.groupMemberCreate(params)
	case "tag_list":
		return f.tagList(), nil
	case "package_show":
		return f.packageShow(params)
	case "package_create":
		return f.packageCreate(params)
	case "package_patch":
		return f.packagePatch(params)
	case "package_search":
		return f.packageSearch(params)
	default:
		return nil, apperror.Transport(action, fmt.Errorf("fake catalog: unknown action"))
	}
}

func (f *fakeCatalog) lookupUser(ref string) (catalog.Record, bool) {
	if rec, ok := f.users[ref]; ok {
		return rec, true
	}
	if id, ok := f.userNames[ref]; ok {
		return f.users[id], true
	}
	return nil, false
}

func (f *fakeCatalog) userShow(params catalog.Params) (catalog.Record, error) {
	ref := fmt.Sprint(params["id"])
	rec, ok := f.lookupUser(ref)
	if !ok {
		return nil, apperror.NotFound("user", ref)
	}
	return copyRecord(rec), nil
}

func (f *fakeCatalog) userCreate(params catalog.Params) (catalog.Record, error) {
	login := fmt.Sprint(params["name"])
	if _, taken := f.userNames[login]; taken {
		return nil, apperror.ValidationFailed("name", "That login name is not available.")
	}
	rec := f.seedUser(login, fmt.Sprint(params["email"]), fmt.Sprint(params["fullname"]))
	if about, ok := params["about"]; ok {
		rec["about"] = about
	}
	return copyRecord(rec), nil
}

func (f *fakeCatalog) userUpdate(params catalog.Params) (catalog.Record, error) {
	rec, ok := f.lookupUser(fmt.Sprint(params["id"]))
	if !ok {
		return nil, apperror.NotFound("user", fmt.Sprint(params["id"]))
	}
	for key, value := range params {
		if key == "id" || key == "apikey" {
			continue
		}
		rec[key] = value
	}
	return copyRecord(rec), nil
}

func (f *fakeCatalog) userDelete(params catalog.Params) (catalog.Record, error) {
	rec, ok := f.lookupUser(fmt.Sprint(params["id"]))
	if !ok {
		return nil, apperror.NotFound("user", fmt.Sprint(params["id"]))
	}
	rec["state"] = "deleted"
	return catalog.Record{}, nil
}

func (f *fakeCatalog) lookupOrg(ref string) (catalog.Record, bool) {
	if rec, ok := f.orgs[ref]; ok {
		return rec, true
	}
	if id, ok := f.orgNames[ref]; ok {
		return f.orgs[id], true
	}
	return nil, false
}

func (f *fakeCatalog) orgShow(params catalog.Params) (catalog.Record, error) {
	ref := fmt.Sprint(params["id"])
	rec, ok := f.lookupOrg(ref)
	if !ok {
		return nil, apperror.NotFound("organization", ref)
	}
	return copyRecord(rec), nil
}

func (f *fakeCatalog) orgCreate(apiKey string, params catalog.Params) (catalog.Record, error) {
	name := fmt.Sprint(params["name"])
	if _, taken := f.orgNames[name]; taken {
		return nil, apperror.ValidationFailed("name", "Group name already exists in database")
	}
	id := f.nextID("org")
	rec := catalog.Record{
		"id":                id,
		"name":              name,
		"title":             params["title"],
		"display_name":      params["title"],
		"description":       params["description"],
		"image_display_url": "",
		"extras":            params["extras"],
	}
	if rec["extras"] == nil {
		rec["extras"] = []any{}
	}
	f.orgs[id] = rec
	f.orgNames[name] = id
	f.orgOrder = append(f.orgOrder, id)
	f.members[id] = map[string]string{}
	if creator, ok := f.apiKeys[apiKey]; ok {
		f.members[id][creator] = "admin"
	}
	return copyRecord(rec), nil
}

func (f *fakeCatalog) orgPatch(params catalog.Params) (catalog.Record, error) {
	rec, ok := f.lookupOrg(fmt.Sprint(params["id"]))
	if !ok {
		return nil, apperror.NotFound("organization", fmt.Sprint(params["id"]))
	}
	for key, value := range params {
		if key == "id" {
			continue
		}
		rec[key] = value
	}
	return copyRecord(rec), nil
}

func (f *fakeCatalog) orgList() catalog.Record {
	results := make([]any, 0, len(f.orgOrder))
	for _, id := range f.orgOrder {
		results = append(results, map[string]any(copyRecord(f.orgs[id])))
	}
	return catalog.Record{"results": results}
}

func (f *fakeCatalog) orgListForUser(apiKey string, params catalog.Params) (catalog.Record, error) {
	userID, ok := f.apiKeys[apiKey]
	if !ok {
		return nil, apperror.Forbidden("unknown session")
	}
	permission := fmt.Sprint(params["permission"])

	var results []any
	for _, id := range f.orgOrder {
		role, member := f.members[id][userID]
		if !member {
			continue
		}
		if permission == "admin" && role != "admin" {
			continue
		}
		results = append(results, map[string]any(copyRecord(f.orgs[id])))
	}
	if results == nil {
		results = []any{}
	}
	return catalog.Record{"results": results}, nil
}

func (f *fakeCatalog) orgMemberCreate(params catalog.Params) (catalog.Record, error) {
	org, ok := f.lookupOrg(fmt.Sprint(params["id"]))
	if !ok {
		return nil, apperror.NotFound("organization", fmt.Sprint(params["id"]))
	}
	user, ok := f.lookupUser(fmt.Sprint(params["username"]))
	if !ok {
		return nil, apperror.NotFound("user", fmt.Sprint(params["username"]))
	}
	f.members[org.String("id")][user.String("id")] = fmt.Sprint(params["role"])
	return catalog.Record{}, nil
}

func (f *fakeCatalog) groupMemberCreate(params catalog.Params) (catalog.Record, error) {
	group := fmt.Sprint(params["id"])
	user, ok := f.lookupUser(fmt.Sprint(params["username"]))
	if !ok {
		return nil, apperror.NotFound("user", fmt.Sprint(params["username"]))
	}
	if f.groups[group] == nil {
		f.groups[group] = map[string]bool{}
	}
	f.groups[group][user.String("id")] = true
	return catalog.Record{}, nil
}

func (f *fakeCatalog) tagList() catalog.Record {
	seen := map[string]bool{}
	var names []any
	for _, id := range f.pkgOrder {
		for _, tag := range f.packages[id].TagNames() {
			if !seen[tag] {
				seen[tag] = true
				names = append(names, tag)
			}
		}
	}
	if names == nil {
		names = []any{}
	}
	return catalog.Record{"results": names}
}

func (f *fakeCatalog) packageShow(params catalog.Params) (catalog.Record, error) {
	ref := fmt.Sprint(params["id"])
	if rec, ok := f.packages[ref]; ok {
		return copyRecord(rec), nil
	}
	if id, ok := f.pkgNames[ref]; ok {
		return copyRecord(f.packages[id]), nil
	}
	return nil, apperror.NotFound("package", ref)
}

func (f *fakeCatalog) packageCreate(params catalog.Params) (catalog.Record, error) {
	name := fmt.Sprint(params["name"])
	if _, taken := f.pkgNames[name]; taken || f.takenNames[name] {
		return nil, apperror.ValidationFailed("name", "That URL is already in use.")
	}

	org, ok := f.lookupOrg(fmt.Sprint(params["owner_org"]))
	if !ok {
		return nil, apperror.ValidationFailed("owner_org", "Organization does not exist")
	}

	id := f.nextID("pkg")
	rec := catalog.Record{
		"id":        id,
		"name":      name,
		"title":     params["title"],
		"author":    params["author"],
		"notes":     params["notes"],
		"owner_org": org.String("id"),
		"organization": map[string]any{
			"id":    org.String("id"),
			"name":  org.String("name"),
			"title": org.String("title"),
		},
		"tags":   params["tags"],
		"groups": params["groups"],
	}
	if rec["tags"] == nil {
		rec["tags"] = []any{}
	}
	if rec["groups"] == nil {
		rec["groups"] = []any{}
	}
	f.packages[id] = rec
	f.pkgNames[name] = id
	f.pkgOrder = append(f.pkgOrder, id)
	return copyRecord(rec), nil
}

func (f *fakeCatalog) packagePatch(params catalog.Params) (catalog.Record, error) {
	ref := fmt.Sprint(params["id"])
	rec, ok := f.packages[ref]
	if !ok {
		if id, found := f.pkgNames[ref]; found {
			rec, ok = f.packages[id], true
		}
	}
	if !ok {
		return nil, apperror.NotFound("package", ref)
	}
	for key, value := range params {
		if key == "id" {
			continue
		}
		rec[key] = value
	}
	return copyRecord(rec), nil
}

func (f *fakeCatalog) packageSearch(params catalog.Params) (catalog.Record, error) {
	query := fmt.Sprint(params["q"])
	start := intParam(params, "start", 0)
	rows := intParam(params, "rows", 10)

	var matched []catalog.Record
	for _, id := range f.pkgOrder {
		if matchQuery(f.packages[id], query) {
			matched = append(matched, f.packages[id])
		}
	}

	res := catalog.Record{"count": len(matched)}

	if fields, ok := params["facet.field"].([]any); ok {
		facets := map[string]any{}
		for _, field := range fields {
			if fmt.Sprint(field) == "tags" {
				facets["tags"] = map[string]any{"items": f.tagFacet()}
			}
		}
		res["search_facets"] = facets
	}

	page := []any{}
	for i := start; i < len(matched) && len(page) < rows; i++ {
		page = append(page, map[string]any(copyRecord(matched[i])))
	}
	res["results"] = page
	return res, nil
}

// tagFacet counts tag occurrences over all packages, in first-seen order
// (the "native order" ties fall back to).
func (f *fakeCatalog) tagFacet() []any {
	counts := map[string]int{}
	var order []string
	for _, id := range f.pkgOrder {
		for _, tag := range f.packages[id].TagNames() {
			if counts[tag] == 0 {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}
	items := make([]any, 0, len(order))
	for _, tag := range order {
		items = append(items, map[string]any{"name": tag, "count": float64(counts[tag])})
	}
	return items
}

func intParam(params catalog.Params, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// matchQuery evaluates the query mini-language against one package. The
// author clause matches by prefix, imitating a tokenizing index that
// returns near-misses. The exactness defence belongs to the callers.
func matchQuery(pkg catalog.Record, query string) bool {
	for clause := range strings.SplitSeq(query, " AND ") {
		key, value, ok := strings.Cut(clause, ":")
		if !ok {
			return false
		}
		switch key {
		case "groups":
			if !containsName(pkg.Records("groups"), value) {
				return false
			}
		case "author":
			want := strings.Trim(value, `"`)
			if !strings.HasPrefix(pkg.String("author"), want) {
				return false
			}
		case "tags":
			if !matchAny(pkg.TagNames(), value) {
				return false
			}
		case "organization":
			if !matchAny([]string{pkg.Object("organization").String("name")}, value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsName(records []catalog.Record, name string) bool {
	for _, rec := range records {
		if rec.String("name") == name {
			return true
		}
	}
	return false
}

// matchAny evaluates an OR-group like ("a" OR "b") or (x OR y).
func matchAny(have []string, group string) bool {
	group = strings.TrimPrefix(group, "(")
	group = strings.TrimSuffix(group, ")")
	haveSet := map[string]bool{}
	for _, h := range have {
		haveSet[h] = true
	}
	for alt := range strings.SplitSeq(group, " OR ") {
		if haveSet[strings.Trim(alt, `"`)] {
			return true
		}
	}
	return false
}

// ---- shared test helpers ----

func mustCreateUser(t *testing.T, f *fakeCatalog, login string) *User {
	t.Helper()
	u, err := CreateUser(context.Background(), f.admin(), login, login+"@mail.example", "Student "+login, "")
	require.NoError(t, err)
	return u
}

// mustCreateStudent creates a user, joins them to lut and creates their
// portfolio.
func mustCreateStudent(t *testing.T, f *fakeCatalog, login string) (*User, *StudentPortfolio) {
	t.Helper()
	u := mustCreateUser(t, f, login)
	require.NoError(t, u.AddToOrganization(context.Background(), "lut"))
	p, err := u.CreateStudentProfile(context.Background(), "")
	require.NoError(t, err)
	return u, p
}
