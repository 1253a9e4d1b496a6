// Package providertest declares a behavioral test suite that every
// persistence provider implementation must pass.
package providertest

import (
	"context"
	"time"

	"github.com/dogmatiq/retrospect/instance"
	"github.com/dogmatiq/retrospect/oplog"
	"github.com/dogmatiq/retrospect/persistence"
	"github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
)

// NewProviderFunc constructs the provider under test. The returned function
// is called to release any resources the provider holds.
type NewProviderFunc func() (persistence.Provider, func())

// Declare declares generic behavioral tests for a persistence provider.
func Declare(newProvider NewProviderFunc) {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		provider persistence.Provider
		release  func()
		ds       persistence.DataStore
	)

	at := func(ms int) *time.Time {
		t := time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond).UTC()
		return &t
	}

	save := func(id string, rev uint64, a instance.Aggregate) persistence.Result {
		a.ID = id
		res, err := ds.Persist(
			ctx,
			persistence.Batch{
				persistence.SaveAggregate{
					Record: persistence.AggregateRecord{
						InstanceID: id,
						Revision:   rev,
						Aggregate:  a,
					},
				},
			},
		)
		gomega.ExpectWithOffset(1, err).ShouldNot(gomega.HaveOccurred())
		return res
	}

	ginkgo.BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		provider, release = newProvider()

		var err error
		ds, err = provider.Open(ctx, "<definition>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		if ds != nil {
			ds.Close()
		}

		if release != nil {
			release()
		}

		cancel()
	})

	ginkgo.Describe("func Open()", func() {
		ginkgo.It("locks the data-store for exclusive use", func() {
			_, err := provider.Open(ctx, "<definition>")
			gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreLocked))
		})

		ginkgo.It("allows the data-store to be reopened after it is closed", func() {
			save("<instance>", 0, instance.Aggregate{})

			err := ds.Close()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ds, err = provider.Open(ctx, "<definition>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			rec, err := ds.LoadAggregate(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.Revision).To(gomega.BeEquivalentTo(1))
		})

		ginkgo.It("keeps the documents of distinct definitions separate", func() {
			save("<instance>", 0, instance.Aggregate{})

			other, err := provider.Open(ctx, "<other-definition>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer other.Close()

			rec, err := other.LoadAggregate(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.Revision).To(gomega.BeZero())
		})
	})

	ginkgo.Describe("func LoadAggregate()", func() {
		ginkgo.It("returns a zero-valued record for an unknown instance", func() {
			rec, err := ds.LoadAggregate(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.InstanceID).To(gomega.Equal("<instance>"))
			gomega.Expect(rec.Revision).To(gomega.BeZero())
		})

		ginkgo.It("round-trips a persisted document", func() {
			save("<instance>", 0, instance.Aggregate{
				DefinitionKey: "<definition>",
				State:         instance.StateActive,
				Variables: []instance.Variable{
					{ID: "var-1", Name: "amount", Type: "Long", Value: "10"},
				},
				FlowNodes: []instance.FlowNode{
					{
						ID:         "occ-1",
						FlowNodeID: "task",
						StartDate:  at(100),
					},
				},
			})

			rec, err := ds.LoadAggregate(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.Revision).To(gomega.BeEquivalentTo(1))
			gomega.Expect(rec.Aggregate.Variables).To(gomega.HaveLen(1))
			gomega.Expect(rec.Aggregate.FlowNodes).To(gomega.HaveLen(1))
			gomega.Expect(rec.Aggregate.FlowNodes[0].StartDate.Equal(*at(100))).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("func Persist()", func() {
		ginkgo.It("returns the as-persisted revision", func() {
			res := save("<instance>", 0, instance.Aggregate{})
			gomega.Expect(res.AggregateRecords).To(gomega.HaveLen(1))
			gomega.Expect(res.AggregateRecords[0].Revision).To(gomega.BeEquivalentTo(1))

			res = save("<instance>", 1, instance.Aggregate{})
			gomega.Expect(res.AggregateRecords[0].Revision).To(gomega.BeEquivalentTo(2))
		})

		ginkgo.It("rejects a write against a stale revision", func() {
			save("<instance>", 0, instance.Aggregate{})

			_, err := ds.Persist(
				ctx,
				persistence.Batch{
					persistence.SaveAggregate{
						Record: persistence.AggregateRecord{
							InstanceID: "<instance>",
							Revision:   0,
							Aggregate:  instance.Aggregate{ID: "<instance>"},
						},
					},
				},
			)

			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
		})

		ginkgo.It("removes a document", func() {
			save("<instance>", 0, instance.Aggregate{})

			_, err := ds.Persist(
				ctx,
				persistence.Batch{
					persistence.RemoveAggregate{
						InstanceID: "<instance>",
						Revision:   1,
					},
				},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			rec, err := ds.LoadAggregate(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.Revision).To(gomega.BeZero())
		})

		ginkgo.It("rejects removal of an unknown document", func() {
			_, err := ds.Persist(
				ctx,
				persistence.Batch{
					persistence.RemoveAggregate{
						InstanceID: "<instance>",
					},
				},
			)

			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.NotFoundError{}))
		})

		ginkgo.It("clears variables without touching the rest of the document", func() {
			save("<instance>", 0, instance.Aggregate{
				State: instance.StateCompleted,
				Variables: []instance.Variable{
					{ID: "var-1", Value: "10"},
				},
				FlowNodes: []instance.FlowNode{
					{ID: "occ-1", FlowNodeID: "task"},
				},
			})

			_, err := ds.Persist(
				ctx,
				persistence.Batch{
					persistence.ClearVariables{
						InstanceID: "<instance>",
						Revision:   1,
					},
				},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			rec, err := ds.LoadAggregate(ctx, "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.Revision).To(gomega.BeEquivalentTo(2))
			gomega.Expect(rec.Aggregate.Variables).To(gomega.BeEmpty())
			gomega.Expect(rec.Aggregate.FlowNodes).To(gomega.HaveLen(1))
			gomega.Expect(rec.Aggregate.State).To(gomega.Equal(instance.StateCompleted))
		})

		ginkgo.It("persists task state documents", func() {
			assignee := "alice"

			_, err := ds.Persist(
				ctx,
				persistence.Batch{
					persistence.SaveTaskState{
						Record: persistence.TaskStateRecord{
							TaskID: "<task>",
							State: oplog.TaskState{
								TaskID:   "<task>",
								Assignee: &assignee,
								Log: []oplog.Entry{
									{
										ID:            "op-1",
										TaskID:        "<task>",
										DefinitionKey: "<definition>",
										Timestamp:     *at(100),
										Kind:          oplog.Add,
										Category:      oplog.Assignee,
										Subject:       "alice",
									},
								},
							},
						},
					},
				},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			rec, err := ds.LoadTaskState(ctx, "<task>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.Revision).To(gomega.BeEquivalentTo(1))
			gomega.Expect(rec.State.Log).To(gomega.HaveLen(1))
			gomega.Expect(*rec.State.Assignee).To(gomega.Equal("alice"))
		})

		ginkgo.It("returns an error when the data-store is closed", func() {
			ds.Close()

			_, err := ds.Persist(
				ctx,
				persistence.Batch{
					persistence.SaveAggregate{
						Record: persistence.AggregateRecord{
							InstanceID: "<instance>",
						},
					},
				},
			)

			gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreClosed))
		})
	})

	ginkgo.Describe("func PersistBulk()", func() {
		ginkgo.It("isolates failures to the offending operation", func() {
			save("<instance-1>", 0, instance.Aggregate{})

			res, err := ds.PersistBulk(
				ctx,
				persistence.Batch{
					persistence.RemoveAggregate{
						InstanceID: "<instance-1>",
						Revision:   99,
					},
					persistence.SaveAggregate{
						Record: persistence.AggregateRecord{
							InstanceID: "<instance-2>",
							Aggregate:  instance.Aggregate{ID: "<instance-2>"},
						},
					},
				},
			)

			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(res.Items).To(gomega.HaveLen(2))
			gomega.Expect(res.Items[0].Err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
			gomega.Expect(res.Items[1].Err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(res.Failed()).To(gomega.HaveLen(1))

			rec, err := ds.LoadAggregate(ctx, "<instance-2>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rec.Revision).To(gomega.BeEquivalentTo(1))
		})
	})

	ginkgo.Describe("func LoadStaleAggregateIDs()", func() {
		ginkgo.BeforeEach(func() {
			save("<instance-1>", 0, instance.Aggregate{EndDate: at(100)})
			save("<instance-2>", 0, instance.Aggregate{EndDate: at(900)})
			save("<instance-3>", 0, instance.Aggregate{})
			save("<instance-4>", 0, instance.Aggregate{EndDate: at(50)})
		})

		ginkgo.It("returns only instances that ended before the cut-off", func() {
			ids, err := ds.LoadStaleAggregateIDs(ctx, *at(500), 0)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.Equal(
				[]string{"<instance-1>", "<instance-4>"},
			))
		})

		ginkgo.It("honors the limit", func() {
			ids, err := ds.LoadStaleAggregateIDs(ctx, *at(500), 1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.HaveLen(1))
		})
	})
}
