package gosync

import (
	"github.com/dave/jennifer/jen"

	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/metamodel"
)

// transformationName returns the name reported by the generated program.
func transformationName(h gen.GeneratorHelper) string {
	if name := h.Config().Name; name != "" {
		return name
	}
	return h.Annotated().Graph.Module.Name
}

// genTransformation generates the transformation type: the model role
// declarations and the entry point running every rule in creation order.
func genTransformation(h gen.GeneratorHelper) (*jen.File, error) {
	f := h.NewFile("main")
	a := h.Annotated()
	g := a.Graph
	rt := h.RuntimePkg()
	name := transformationName(h)

	f.Commentf("transformation is the %s transformation.", name)
	f.Type().Id("transformation").Struct()

	f.Comment("Name returns the transformation name.")
	f.Func().Params(jen.Id("transformation")).Id("Name").Params().String().Block(
		jen.Return(jen.Lit(name)),
	)

	f.Comment("InModels returns the in-model roles in declaration order.")
	f.Func().Params(jen.Id("transformation")).Id("InModels").Params().Index().Qual(rt, "ModelDecl").Block(
		jen.Return(jen.Index().Qual(rt, "ModelDecl").ValuesFunc(func(grp *jen.Group) {
			for _, r := range g.In {
				grp.Values(jen.Dict{
					jen.Id("Role"):      jen.Lit(r.Name),
					jen.Id("Metamodel"): jen.Id(gen.MetamodelVar(r.Metamodel)),
				})
			}
		})),
	)

	f.Comment("OutModels returns the out-model roles in declaration order.")
	f.Func().Params(jen.Id("transformation")).Id("OutModels").Params().Index().Qual(rt, "ModelDecl").Block(
		jen.Return(jen.Index().Qual(rt, "ModelDecl").ValuesFunc(func(grp *jen.Group) {
			for _, r := range g.Out {
				grp.Values(jen.Dict{
					jen.Id("Role"):      jen.Lit(r.Name),
					jen.Id("Metamodel"): jen.Id(gen.MetamodelVar(r.Metamodel)),
					jen.Id("Rules"): jen.Index().String().ValuesFunc(func(rules *jen.Group) {
						for _, rule := range a.RulesOf(r) {
							rules.Lit(rule.Name)
						}
					}),
					jen.Id("New"): jen.Id(r.NewModelFunc()),
				})
			}
		})),
	)

	for _, r := range g.Out {
		f.Commentf("%s instantiates an empty %s model.", r.NewModelFunc(), r.Name)
		f.Func().Id(r.NewModelFunc()).Params().Op("*").Qual(rt, "Model").Block(
			jen.Return(jen.Qual(rt, "NewModel").Call(jen.Lit(r.Name), jen.Id(gen.MetamodelVar(r.Metamodel)))),
		)
	}

	f.Comment("Transform creates the target elements of every rule in creation order,")
	f.Comment("then binds their features.")
	f.Func().Params(jen.Id("transformation")).Id("Transform").Params(
		jen.Id("c").Op("*").Qual(rt, "Context"),
	).Error().BlockFunc(func(grp *jen.Group) {
		for _, r := range a.Order {
			if !a.RuleInfo(r).Creates() {
				continue
			}
			grp.If(jen.Err().Op(":=").Id(r.CreateFunc()).Call(jen.Id("c")), jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Err()),
			)
		}
		for _, r := range a.Order {
			if a.RuleInfo(r).Creates() {
				grp.Id(r.ApplyFunc()).Call(jen.Id("c"))
			}
		}
		grp.Return(jen.Id("c").Dot("Err").Call())
	})
	return f, nil
}

// genMetamodels generates one literal per metamodel bound by the module.
func genMetamodels(h gen.GeneratorHelper) (*jen.File, error) {
	f := h.NewFile("main")
	pkg := h.MetamodelPkg()
	for _, mm := range h.Annotated().Graph.Metamodels {
		f.Commentf("%s is the %s metamodel.", gen.MetamodelVar(mm), mm.Name)
		f.Var().Id(gen.MetamodelVar(mm)).Op("=").Qual(pkg, "MustInit").Call(
			jen.Op("&").Qual(pkg, "Metamodel").Values(metamodelDict(pkg, mm)),
		)
	}
	return f, nil
}

func metamodelDict(pkg string, mm *metamodel.Metamodel) jen.Dict {
	d := jen.Dict{
		jen.Id("Name"): jen.Lit(mm.Name),
		jen.Id("Classes"): jen.Index().Op("*").Qual(pkg, "Class").ValuesFunc(func(g *jen.Group) {
			for _, cls := range mm.Classes {
				g.Values(classDict(pkg, cls))
			}
		}),
	}
	if mm.NsURI != "" {
		d[jen.Id("NsURI")] = jen.Lit(mm.NsURI)
	}
	return d
}

func classDict(pkg string, cls *metamodel.Class) jen.Dict {
	d := jen.Dict{jen.Id("Name"): jen.Lit(cls.Name)}
	if cls.Abstract {
		d[jen.Id("Abstract")] = jen.True()
	}
	if len(cls.Supertypes) > 0 {
		d[jen.Id("Supertypes")] = jen.Index().String().ValuesFunc(func(g *jen.Group) {
			for _, s := range cls.Supertypes {
				g.Lit(s)
			}
		})
	}
	if len(cls.Features) > 0 {
		d[jen.Id("Features")] = jen.Index().Op("*").Qual(pkg, "Feature").ValuesFunc(func(g *jen.Group) {
			for _, ft := range cls.Features {
				g.Values(featureDict(ft))
			}
		})
	}
	return d
}

func featureDict(ft *metamodel.Feature) jen.Dict {
	d := jen.Dict{
		jen.Id("Name"): jen.Lit(ft.Name),
		jen.Id("Type"): jen.Lit(ft.Type),
	}
	if ft.Many {
		d[jen.Id("Many")] = jen.True()
	}
	if ft.Containment {
		d[jen.Id("Containment")] = jen.True()
	}
	if ft.Opposite != "" {
		d[jen.Id("Opposite")] = jen.Lit(ft.Opposite)
	}
	return d
}
