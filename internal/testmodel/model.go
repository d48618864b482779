// Package testmodel provides the entity graph shared by package tests.
//
//	Customer 1--* Order          (Order.customer owned, Customer.orders mapped)
//	Customer *--* Group          (customer_groups owned by Customer.groups)
//	Customer 1--1 Address        (Customer.address owned, optional)
//	Customer 1--1 Profile        (Profile.customer owned, Customer.profile mapped)
//	Address  *--1 Country
//	Order    *--1 Coupon         (through order_coupons, optional)
//	Order    1--* Item           (Item.order owned, Order.items mapped)
//	Order    1--* Note           (notes.order_id, owned without join table)
//	Order    extension order_ext (attributes)
package testmodel

import "github.com/coregx/relmap/internal/meta"

func id() *meta.Field {
	return &meta.Field{Name: "id", Column: "id", Type: meta.TypeInt64}
}

func scalar(name string, t meta.FieldType) *meta.Field {
	return &meta.Field{Name: name, Column: name, Type: t}
}

func rel(name, column, target string, card meta.Cardinality, optional bool) *meta.Field {
	return &meta.Field{
		Name:     name,
		Column:   column,
		Optional: optional,
		Relation: &meta.ForeignConstraint{Target: target, Cardinality: card},
	}
}

func mapped(name, target string, card meta.Cardinality, mappedBy string) *meta.Field {
	return &meta.Field{
		Name: name,
		Relation: &meta.ForeignConstraint{
			Target:      target,
			Cardinality: card,
			Ownership:   meta.Mapped,
			MappedBy:    mappedBy,
		},
	}
}

// Registry builds a fresh, validated registry of the shop model.
func Registry() *meta.Registry {
	groups := &meta.Field{
		Name: "groups",
		Relation: &meta.ForeignConstraint{
			Target:      "Group",
			Cardinality: meta.ManyToMany,
			JoinTable:   &meta.JoinTable{Name: "customer_groups", OwnerColumn: "customer_id", TargetColumn: "group_id"},
		},
	}
	coupon := &meta.Field{
		Name:     "coupon",
		Optional: true,
		Relation: &meta.ForeignConstraint{
			Target:      "Coupon",
			Cardinality: meta.ManyToOne,
			JoinTable:   &meta.JoinTable{Name: "order_coupons", OwnerColumn: "order_id", TargetColumn: "coupon_id"},
		},
	}

	reg := meta.NewRegistry().MustRegister(
		meta.NewEntity("Customer", "customers", id(),
			scalar("name", meta.TypeString),
			&meta.Field{Name: "email", Column: "email", Type: meta.TypeString, Optional: true},
			rel("address", "address_id", "Address", meta.OneToOne, true),
			mapped("orders", "Order", meta.OneToMany, "customer"),
			groups,
			mapped("profile", "Profile", meta.OneToOne, "customer"),
		),
		meta.NewEntity("Group", "groups", id(),
			scalar("name", meta.TypeString),
			mapped("customers", "Customer", meta.ManyToMany, "groups"),
		),
		meta.NewEntity("Address", "addresses", id(),
			scalar("city", meta.TypeString),
			rel("country", "country_id", "Country", meta.ManyToOne, false),
		),
		meta.NewEntity("Country", "countries", id(),
			scalar("code", meta.TypeString),
		),
		meta.NewEntity("Profile", "profiles", id(),
			scalar("bio", meta.TypeString),
			rel("customer", "customer_id", "Customer", meta.OneToOne, false),
		),
		meta.NewEntity("Coupon", "coupons", id(),
			scalar("code", meta.TypeString),
		),
		meta.NewEntity("Order", "orders", id(),
			scalar("title", meta.TypeString),
			scalar("total", meta.TypeFloat),
			scalar("created", meta.TypeTime),
			rel("customer", "customer_id", "Customer", meta.ManyToOne, false),
			coupon,
			mapped("items", "Item", meta.OneToMany, "order"),
			rel("notes", "order_id", "Note", meta.OneToMany, false),
		).WithExtension(&meta.Extension{Field: "ext", Table: "order_ext", IDColumn: "order_id", Holder: "attributes"}),
		meta.NewEntity("Item", "items", id(),
			scalar("sku", meta.TypeString),
			scalar("quantity", meta.TypeInt),
			rel("order", "order_id", "Order", meta.ManyToOne, false),
		),
		meta.NewEntity("Note", "notes", id(),
			scalar("text", meta.TypeString),
		),
	)
	if err := reg.Validate(); err != nil {
		panic(err)
	}
	return reg
}

// Entity returns a registered entity of reg, panicking when absent.
func Entity(reg *meta.Registry, name string) *meta.Entity {
	e, err := reg.Entity(name)
	if err != nil {
		panic(err)
	}
	return e
}
