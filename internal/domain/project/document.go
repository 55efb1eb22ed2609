package project

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// node is one object of the project document. Fields the views do not
// know about are carried through untouched.
type node map[string]any

func (n node) str(key string) string {
	s, _ := n[key].(string)
	return s
}

// get returns the object under key, or a nil node when absent. It never modifies n.
func (n node) get(key string) node {
	m, _ := n[key].(map[string]any)
	return m
}

// child returns the object under key, creating it when absent or null.
func (n node) child(key string) node {
	if m, ok := n[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	n[key] = m
	return m
}

// objects returns the object elements of the list under key.
func (n node) objects(key string) []node {
	list, _ := n[key].([]any)
	out := make([]node, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// push appends v to the list under key, creating the list when absent.
func (n node) push(key string, v any) {
	list, _ := n[key].([]any)
	n[key] = append(list, v)
}

func findByName(nodes []node, name string) (node, bool) {
	for _, n := range nodes {
		if n.str("name") == name {
			return n, true
		}
	}
	return nil, false
}

func findByID(nodes []node, id string) (node, bool) {
	for _, n := range nodes {
		if n.str("id") == id {
			return n, true
		}
	}
	return nil, false
}

// Document is the full remote project definition.
type Document struct {
	root node
}

// Decode parses a project document. Numbers keep their original text.
func Decode(raw []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrMalformedDocument)
	}
	return &Document{root: root}, nil
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(d.root))
}

func (d *Document) Name() string { return d.root.str("name") }

// Rename sets the project name and caption.
func (d *Document) Rename(name string) {
	d.root["name"] = name
	d.root.child("properties")["caption"] = name
}

func (d *Document) Datasets() []Dataset {
	nodes := d.root.get("datasets").objects("data-set")
	out := make([]Dataset, len(nodes))
	for i, n := range nodes {
		out[i] = Dataset{n}
	}
	return out
}

// Dataset finds a dataset by name.
func (d *Document) Dataset(name string) (Dataset, error) {
	n, ok := findByName(d.root.get("datasets").objects("data-set"), name)
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return Dataset{n}, nil
}

func (d *Document) addDataset(ds map[string]any) {
	d.root.child("datasets").push("data-set", ds)
}

func (d *Document) Cubes() []Cube {
	nodes := d.root.get("cubes").objects("cube")
	out := make([]Cube, len(nodes))
	for i, n := range nodes {
		out[i] = Cube{n}
	}
	return out
}

// CubeByID finds the cube whose id is the model id.
func (d *Document) CubeByID(id string) (Cube, bool) {
	n, ok := findByID(d.root.get("cubes").objects("cube"), id)
	return Cube{n}, ok
}

// CubeByName finds the cube of the active model.
func (d *Document) CubeByName(name string) (Cube, error) {
	n, ok := findByName(d.root.get("cubes").objects("cube"), name)
	if !ok {
		return Cube{}, fmt.Errorf("%w: no cube named %q", ErrMalformedDocument, name)
	}
	return Cube{n}, nil
}

// attributes returns the project-level attribute section.
func (d *Document) attributes() attributes { return attributes{d.root.child("attributes")} }

func (d *Document) dimensions() []node { return d.root.get("dimensions").objects("dimension") }

func (d *Document) calculatedMember(name string) (node, bool) {
	return findByName(d.root.get("calculated-members").objects("calculated-member"), name)
}

func (d *Document) addCalculatedMember(m map[string]any) {
	d.root.child("calculated-members").push("calculated-member", m)
}

// Dataset is a data-set entry of the project.
type Dataset struct{ n node }

func (ds Dataset) ID() string   { return ds.n.str("id") }
func (ds Dataset) Name() string { return ds.n.str("name") }

func (ds Dataset) ConnectionID() string {
	return ds.n.get("physical").get("connection").str("id")
}

func (ds Dataset) SetConnectionID(id string) {
	ds.n.child("physical").child("connection")["id"] = id
}

// PhysicalTable is a warehouse table backing a dataset.
type PhysicalTable struct {
	Name, Schema, Database string
}

func (ds Dataset) Tables() []PhysicalTable {
	nodes := ds.n.get("physical").objects("tables")
	out := make([]PhysicalTable, len(nodes))
	for i, t := range nodes {
		out[i] = PhysicalTable{Name: t.str("name"), Schema: t.str("schema"), Database: t.str("database")}
	}
	return out
}

// HasColumn reports whether the dataset has a physical column named name.
func (ds Dataset) HasColumn(name string) bool {
	_, ok := findByName(ds.n.get("physical").objects("columns"), name)
	return ok
}

func (ds Dataset) requireColumn(name string) error {
	if !ds.HasColumn(name) {
		return fmt.Errorf("%w: %q in dataset %q", ErrUnknownColumn, name, ds.Name())
	}
	return nil
}

func (ds Dataset) columns() []node { return ds.n.get("physical").objects("columns") }

func (ds Dataset) setColumns(cols []any) { ds.n.child("physical")["columns"] = cols }

func (ds Dataset) addColumn(col map[string]any) { ds.n.child("physical").push("columns", col) }

func (ds Dataset) mapColumn(name string) (node, bool) {
	return findByName(ds.n.get("physical").objects("map-column"), name)
}

func (ds Dataset) addMapColumn(m map[string]any) { ds.n.child("physical").push("map-column", m) }

func (ds Dataset) logical() node { return ds.n.child("logical") }

// Cube is the model definition inside the project.
type Cube struct{ n node }

func (c Cube) ID() string   { return c.n.str("id") }
func (c Cube) Name() string { return c.n.str("name") }

func (c Cube) attributes() attributes { return attributes{c.n.child("attributes")} }

func (c Cube) dimensions() []node { return c.n.get("dimensions").objects("dimension") }

func (c Cube) addDimension(dim map[string]any) { c.n.child("dimensions").push("dimension", dim) }

// datasetRef returns the cube's logical binding of a project dataset.
func (c Cube) datasetRef(datasetID string) (node, error) {
	ref, ok := findByID(c.n.get("data-sets").objects("data-set-ref"), datasetID)
	if !ok {
		return nil, fmt.Errorf("%w: cube %q does not reference dataset %s", ErrUnknownDataset, c.Name(), datasetID)
	}
	return ref, nil
}

func (c Cube) addDatasetRef(ref map[string]any) { c.n.child("data-sets").push("data-set-ref", ref) }

func (c Cube) addCalculatedMemberRef(ref map[string]any) {
	c.n.child("calculated-members").push("calculated-member-ref", ref)
}

// attributes is an attribute section of the project or a cube.
type attributes struct{ n node }

func (a attributes) measure(name string) (node, bool) { return findByName(a.n.objects("attribute"), name) }

func (a attributes) keyed(name string) (node, bool) {
	return findByName(a.n.objects("keyed-attribute"), name)
}

func (a attributes) addMeasure(m map[string]any) { a.n.push("attribute", m) }

func (a attributes) addKeyed(m map[string]any) { a.n.push("keyed-attribute", m) }

func (a attributes) addKey(m map[string]any) { a.n.push("attribute-key", m) }

// levelsWithPrimary finds the levels of the named hierarchy whose primary attribute is attrID.
func levelsWithPrimary(dimensions []node, hierarchy, attrID string) []node {
	var out []node
	for _, dim := range dimensions {
		for _, h := range dim.objects("hierarchy") {
			if h.str("name") != hierarchy {
				continue
			}
			for _, l := range h.objects("level") {
				if l.str("primary-attribute") == attrID {
					out = append(out, l)
				}
			}
		}
	}
	return out
}
