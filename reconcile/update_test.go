package reconcile_test

import (
	"time"

	"github.com/dogmatiq/retrospect/instance"
	. "github.com/dogmatiq/retrospect/reconcile"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Update", func() {
	Describe("func Validate()", func() {
		It("fails when the update does not identify an instance", func() {
			_, err := Update{
				DefinitionKey: "<definition>",
			}.Validate()

			Expect(err).Should(HaveOccurred())
		})

		It("fails when the update does not identify a definition", func() {
			_, err := Update{
				InstanceID: "<instance>",
			}.Validate()

			Expect(err).Should(HaveOccurred())
		})

		It("strips malformed entries without failing the update", func() {
			now := time.Unix(0, 0).UTC()

			u, err := Update{
				InstanceID:    "<instance>",
				DefinitionKey: "<definition>",
				Variables: []instance.Variable{
					{ID: "var-1", Value: "10"},
					{Value: "no id"},
				},
				FlowNodes: []instance.FlowNode{
					{ID: "occ-1", FlowNodeID: "task"},
					{ID: "occ-2"},
				},
				Incidents: []instance.Incident{
					{ID: "inc-1"},
					{},
				},
				PendingUpdates: []instance.PendingUpdate{
					{
						ID:            "upd-1",
						SourceEventID: "evt-1",
						FlowNodeID:    "task",
						MappedAs:      instance.RoleStart,
						Date:          now,
					},
					{
						ID:            "upd-2",
						SourceEventID: "evt-2",
						FlowNodeID:    "task",
						MappedAs:      instance.Role("MIDDLE"),
						Date:          now,
					},
				},
			}.Validate()

			Expect(err).Should(HaveOccurred())
			Expect(u.Variables).To(HaveLen(1))
			Expect(u.FlowNodes).To(HaveLen(1))
			Expect(u.Incidents).To(HaveLen(1))
			Expect(u.PendingUpdates).To(HaveLen(1))
		})

		It("returns the update unchanged when everything is well-formed", func() {
			in := Update{
				InstanceID:    "<instance>",
				DefinitionKey: "<definition>",
				Variables: []instance.Variable{
					{ID: "var-1", Value: "10"},
				},
			}

			out, err := in.Validate()

			Expect(err).ShouldNot(HaveOccurred())
			Expect(out).To(Equal(in))
		})
	})
})
