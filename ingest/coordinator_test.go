package ingest_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dogmatiq/retrospect/fixtures"
	"github.com/dogmatiq/retrospect/gateway"
	. "github.com/dogmatiq/retrospect/ingest"
	"github.com/dogmatiq/retrospect/instance"
	"github.com/dogmatiq/retrospect/oplog"
	"github.com/dogmatiq/retrospect/persistence"
	"github.com/dogmatiq/retrospect/persistence/memorypersistence"
	"github.com/dogmatiq/retrospect/reconcile"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Coordinator", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		provider  *fixtures.ProviderStub
		stores    *persistence.DataStoreSet
		topo      *fixtures.TopologyProviderStub
		coord     *Coordinator
		dataStore *fixtures.DataStoreStub
	)

	at := func(ms int) *time.Time {
		t := time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond).UTC()
		return &t
	}

	update := func(id string, vars ...instance.Variable) reconcile.Update {
		return reconcile.Update{
			InstanceID:    id,
			DefinitionKey: "<definition>",
			Variables:     vars,
			FlowNodes: []instance.FlowNode{
				{
					ID:           id + "-start",
					FlowNodeID:   "start",
					FlowNodeType: "startEvent",
					StartDate:    at(0),
					EndDate:      at(10),
				},
			},
		}
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)

		dataStore = nil
		provider = &fixtures.ProviderStub{
			Provider: &memorypersistence.Provider{},
		}
		provider.OpenFunc = func(ctx context.Context, k string) (persistence.DataStore, error) {
			ds, err := provider.Provider.Open(ctx, k)
			if err != nil {
				return nil, err
			}

			dataStore = &fixtures.DataStoreStub{DataStore: ds}

			return dataStore, nil
		}

		stores = &persistence.DataStoreSet{Provider: provider}
		topo = &fixtures.TopologyProviderStub{}
		coord = New(stores, topo)
	})

	AfterEach(func() {
		stores.Close()
		cancel()
	})

	Describe("func Ingest()", func() {
		It("persists the reconciled document of each instance", func() {
			rep, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update("<instance-1>", instance.Variable{ID: "var-1", Value: "10"}),
					update("<instance-2>", instance.Variable{ID: "var-2", Value: "20"}),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.BatchID).NotTo(BeEmpty())
			Expect(rep.Outcomes).To(HaveLen(2))
			Expect(rep.Err()).ShouldNot(HaveOccurred())

			rec, err := dataStore.LoadAggregate(ctx, "<instance-1>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(rec.Revision).To(BeEquivalentTo(1))
			Expect(rec.Aggregate.Variables).To(Equal(
				[]instance.Variable{{ID: "var-1", Value: "10"}},
			))
			Expect(rec.Aggregate.StartDate).To(Equal(at(0)))
		})

		It("applies same-instance updates in batch order", func() {
			rep, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update("<instance>", instance.Variable{ID: "var-1", Value: "10"}),
					update("<instance>", instance.Variable{ID: "var-1", Value: "20"}),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Outcomes).To(HaveLen(1))

			rec, err := dataStore.LoadAggregate(ctx, "<instance>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(rec.Revision).To(BeEquivalentTo(1))
			Expect(rec.Aggregate.Variables[0].Value).To(Equal("20"))
		})

		It("synthesizes gateway occurrences using the topology", func() {
			topo.GetGatewayTopologyFunc = func(context.Context, string) ([]gateway.Node, error) {
				return []gateway.Node{
					{
						ID:              "split",
						Type:            gateway.Exclusive,
						PreviousNodeIDs: []string{"start"},
						NextNodeIDs:     []string{"left", "right"},
					},
				}, nil
			}

			_, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update("<instance>"),
				},
			)
			Expect(err).ShouldNot(HaveOccurred())

			rec, err := dataStore.LoadAggregate(ctx, "<instance>")
			Expect(err).ShouldNot(HaveOccurred())

			var synthesized []instance.FlowNode
			for _, f := range rec.Aggregate.FlowNodes {
				if f.FlowNodeID == "split" {
					synthesized = append(synthesized, f)
				}
			}

			Expect(synthesized).To(HaveLen(1))
		})

		It("converges when a write races with another writer", func() {
			var interloped int32

			firstOpen := provider.OpenFunc
			provider.OpenFunc = func(ctx context.Context, k string) (persistence.DataStore, error) {
				ds, err := firstOpen(ctx, k)
				if err != nil {
					return nil, err
				}

				stub := ds.(*fixtures.DataStoreStub)
				stub.PersistFunc = func(
					ctx context.Context,
					b persistence.Batch,
				) (persistence.Result, error) {
					// Simulate another process writing the document between
					// our read and our write, exactly once.
					if atomic.CompareAndSwapInt32(&interloped, 0, 1) {
						_, err := stub.DataStore.Persist(
							ctx,
							persistence.Batch{
								persistence.SaveAggregate{
									Record: persistence.AggregateRecord{
										InstanceID: "<instance>",
										Aggregate: instance.Aggregate{
											ID:            "<instance>",
											DefinitionKey: "<definition>",
											State:         instance.StateActive,
											Variables: []instance.Variable{
												{ID: "var-other", Value: "99"},
											},
										},
									},
								},
							},
						)
						Expect(err).ShouldNot(HaveOccurred())
					}

					return stub.DataStore.Persist(ctx, b)
				}

				return stub, nil
			}

			rep, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update("<instance>", instance.Variable{ID: "var-mine", Value: "1"}),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Err()).ShouldNot(HaveOccurred())

			rec, err := dataStore.LoadAggregate(ctx, "<instance>")
			Expect(err).ShouldNot(HaveOccurred())

			var ids []string
			for _, v := range rec.Aggregate.Variables {
				ids = append(ids, v.ID)
			}

			Expect(ids).To(ConsistOf("var-mine", "var-other"))
		})

		It("classifies an exhausted write as a conflict failure", func() {
			coord = New(
				stores,
				topo,
				WithWriteAttempts(2),
			)

			firstOpen := provider.OpenFunc
			provider.OpenFunc = func(ctx context.Context, k string) (persistence.DataStore, error) {
				ds, err := firstOpen(ctx, k)
				if err != nil {
					return nil, err
				}

				stub := ds.(*fixtures.DataStoreStub)
				stub.PersistFunc = func(
					context.Context,
					persistence.Batch,
				) (persistence.Result, error) {
					return persistence.Result{}, persistence.ConflictError{}
				}

				return stub, nil
			}

			rep, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update("<instance>"),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Outcomes).To(HaveLen(1))
			Expect(rep.Outcomes[0].Class).To(Equal(FailureConflict))
			Expect(rep.Outcomes[0].Err).Should(HaveOccurred())
		})

		It("classifies an oversized document as a capacity failure", func() {
			provider.Provider = &memorypersistence.Provider{
				MaxDocumentSize: 64,
			}

			rep, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update(
						"<instance>",
						instance.Variable{
							ID:    "var-1",
							Value: "<a value too large to fit inside the configured document size limit>",
						},
					),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Outcomes).To(HaveLen(1))
			Expect(rep.Outcomes[0].Class).To(Equal(FailureCapacity))
		})

		It("reports structurally invalid updates without aborting the batch", func() {
			rep, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					{DefinitionKey: "<definition>"},
					update("<instance>"),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Outcomes).To(HaveLen(2))
			Expect(rep.Failed()).To(HaveLen(1))
			Expect(rep.Failed()[0].Class).To(Equal(FailureMalformed))

			rec, err := dataStore.LoadAggregate(ctx, "<instance>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(rec.Revision).To(BeEquivalentTo(1))
		})

		It("aborts the batch when the store is unavailable", func() {
			provider.OpenFunc = func(context.Context, string) (persistence.DataStore, error) {
				return nil, errors.New("<store unavailable>")
			}

			_, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update("<instance>"),
				},
			)

			Expect(err).To(MatchError("<store unavailable>"))
		})

		It("reports a topology resolution failure against the instance", func() {
			topo.GetGatewayTopologyFunc = func(context.Context, string) ([]gateway.Node, error) {
				return nil, errors.New("<topology unavailable>")
			}

			rep, err := coord.Ingest(
				ctx,
				[]reconcile.Update{
					update("<instance>"),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Outcomes).To(HaveLen(1))
			Expect(rep.Outcomes[0].Class).To(Equal(FailureOther))
		})

		It("is idempotent under redelivery of the whole batch", func() {
			batch := []reconcile.Update{
				update("<instance>", instance.Variable{ID: "var-1", Value: "10"}),
			}

			_, err := coord.Ingest(ctx, batch)
			Expect(err).ShouldNot(HaveOccurred())

			once, err := dataStore.LoadAggregate(ctx, "<instance>")
			Expect(err).ShouldNot(HaveOccurred())

			_, err = coord.Ingest(ctx, batch)
			Expect(err).ShouldNot(HaveOccurred())

			twice, err := dataStore.LoadAggregate(ctx, "<instance>")
			Expect(err).ShouldNot(HaveOccurred())

			Expect(twice.Aggregate).To(Equal(once.Aggregate))
			Expect(twice.Revision).To(BeEquivalentTo(2))
		})
	})

	Describe("func IngestOperationLog()", func() {
		entry := func(id, taskID string, ms int, k oplog.Kind, c oplog.Category, subject string) oplog.Entry {
			return oplog.Entry{
				ID:            id,
				TaskID:        taskID,
				DefinitionKey: "<definition>",
				Timestamp:     *at(ms),
				Kind:          k,
				Category:      c,
				Subject:       subject,
			}
		}

		It("folds entries into the task state document", func() {
			rep, err := coord.IngestOperationLog(
				ctx,
				[]oplog.Entry{
					entry("op-1", "<task>", 100, oplog.Add, oplog.Assignee, "alice"),
					entry("op-2", "<task>", 200, oplog.Add, oplog.CandidateGroup, "g1"),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Outcomes).To(HaveLen(1))
			Expect(rep.Err()).ShouldNot(HaveOccurred())

			rec, err := dataStore.LoadTaskState(ctx, "<task>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(rec.Revision).To(BeEquivalentTo(1))
			Expect(rec.State.Log).To(HaveLen(2))
			Expect(*rec.State.Assignee).To(Equal("alice"))
			Expect(rec.State.CandidateGroups).To(Equal([]string{"g1"}))
		})

		It("is idempotent under redelivery", func() {
			batch := []oplog.Entry{
				entry("op-1", "<task>", 100, oplog.Add, oplog.Assignee, "alice"),
			}

			_, err := coord.IngestOperationLog(ctx, batch)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = coord.IngestOperationLog(ctx, batch)
			Expect(err).ShouldNot(HaveOccurred())

			rec, err := dataStore.LoadTaskState(ctx, "<task>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(rec.State.Log).To(HaveLen(1))
		})

		It("reports entries without an identity as malformed", func() {
			rep, err := coord.IngestOperationLog(
				ctx,
				[]oplog.Entry{
					{TaskID: "<task>"},
					entry("op-1", "<task>", 100, oplog.Add, oplog.Assignee, "alice"),
				},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(rep.Failed()).To(HaveLen(1))
			Expect(rep.Failed()[0].Class).To(Equal(FailureMalformed))
		})
	})
})
