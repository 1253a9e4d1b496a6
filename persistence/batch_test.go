package persistence_test

import (
	"github.com/dogmatiq/retrospect/instance"
	. "github.com/dogmatiq/retrospect/persistence"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Batch", func() {
	Describe("func MustValidate()", func() {
		It("does not panic when the batch touches distinct documents", func() {
			batch := Batch{
				SaveAggregate{
					Record: AggregateRecord{InstanceID: "<instance-1>"},
				},
				SaveAggregate{
					Record: AggregateRecord{InstanceID: "<instance-2>"},
				},
				SaveTaskState{
					Record: TaskStateRecord{TaskID: "<task-1>"},
				},
			}

			Expect(batch.MustValidate).NotTo(Panic())
		})

		It("does not panic when an aggregate and a task share an ID", func() {
			batch := Batch{
				SaveAggregate{
					Record: AggregateRecord{InstanceID: "<shared>"},
				},
				SaveTaskState{
					Record: TaskStateRecord{TaskID: "<shared>"},
				},
			}

			Expect(batch.MustValidate).NotTo(Panic())
		})

		It("panics when two operations touch the same document", func() {
			batch := Batch{
				SaveAggregate{
					Record: AggregateRecord{
						InstanceID: "<instance>",
						Aggregate:  instance.Aggregate{ID: "<instance>"},
					},
				},
				RemoveAggregate{
					InstanceID: "<instance>",
				},
			}

			Expect(batch.MustValidate).To(Panic())
		})
	})
})
