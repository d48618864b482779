package meta

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// modelDoc is the YAML form of an entity graph.
//
//	entities:
//	  - name: Order
//	    table: orders
//	    id: {name: id, type: int64}
//	    fields:
//	      - {name: title, type: string}
//	      - name: customer
//	        column: customer_id
//	        optional: true
//	        relation: {target: Customer, cardinality: many-to-one}
//	    extension: {field: ext, table: order_ext, id_column: order_id, holder: attributes}
type modelDoc struct {
	Entities []entityDoc `yaml:"entities"`
}

type entityDoc struct {
	Name      string        `yaml:"name"`
	Table     string        `yaml:"table"`
	ID        fieldDoc      `yaml:"id"`
	Fields    []fieldDoc    `yaml:"fields"`
	Extension *extensionDoc `yaml:"extension"`
}

type fieldDoc struct {
	Name     string       `yaml:"name"`
	Column   string       `yaml:"column"`
	Type     string       `yaml:"type"`
	Optional bool         `yaml:"optional"`
	Relation *relationDoc `yaml:"relation"`
}

type relationDoc struct {
	Target      string        `yaml:"target"`
	Cardinality string        `yaml:"cardinality"`
	Ownership   string        `yaml:"ownership"`
	MappedBy    string        `yaml:"mapped_by"`
	JoinTable   *joinTableDoc `yaml:"join_table"`
}

type joinTableDoc struct {
	Name         string `yaml:"name"`
	OwnerColumn  string `yaml:"owner_column"`
	TargetColumn string `yaml:"target_column"`
}

type extensionDoc struct {
	Field    string `yaml:"field"`
	Table    string `yaml:"table"`
	IDColumn string `yaml:"id_column"`
	Holder   string `yaml:"holder"`
}

// LoadFile reads an entity graph from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadYAML(f)
}

// LoadYAML decodes an entity graph, registers every entity and validates the
// cross-entity references.
func LoadYAML(r io.Reader) (*Registry, error) {
	var doc modelDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	reg := NewRegistry()
	for i := range doc.Entities {
		e, err := doc.Entities[i].entity()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (d *entityDoc) entity() (*Entity, error) {
	if d.ID.Name == "" {
		d.ID.Name = "id"
	}
	id, err := d.ID.field()
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", d.Name, err)
	}

	fields := make([]*Field, 0, len(d.Fields))
	for i := range d.Fields {
		f, err := d.Fields[i].field()
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", d.Name, err)
		}
		fields = append(fields, f)
	}

	e := NewEntity(d.Name, d.Table, id, fields...)
	if d.Extension != nil {
		e.WithExtension(&Extension{
			Field:    d.Extension.Field,
			Table:    d.Extension.Table,
			IDColumn: d.Extension.IDColumn,
			Holder:   d.Extension.Holder,
		})
	}
	return e, nil
}

func (d *fieldDoc) field() (*Field, error) {
	f := &Field{
		Name:     d.Name,
		Column:   d.Column,
		Type:     FieldType(d.Type),
		Optional: d.Optional,
	}
	if f.Type == "" {
		f.Type = TypeAny
	}

	if d.Relation == nil {
		if f.Column == "" {
			f.Column = f.Name
		}
		return f, nil
	}

	card, err := ParseCardinality(d.Relation.Cardinality)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", d.Name, err)
	}
	own, err := ParseOwnership(d.Relation.Ownership)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", d.Name, err)
	}
	if d.Relation.MappedBy != "" {
		own = Mapped
	}

	f.Relation = &ForeignConstraint{
		Target:      d.Relation.Target,
		Cardinality: card,
		Ownership:   own,
		MappedBy:    d.Relation.MappedBy,
	}
	if jt := d.Relation.JoinTable; jt != nil {
		f.Relation.JoinTable = &JoinTable{
			Name:         jt.Name,
			OwnerColumn:  jt.OwnerColumn,
			TargetColumn: jt.TargetColumn,
		}
	}
	return f, nil
}
