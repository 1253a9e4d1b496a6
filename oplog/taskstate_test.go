package oplog_test

import (
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/retrospect/oplog"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("type TaskState", func() {
	var logger *logging.BufferedLogger

	at := func(ms int) *time.Time {
		t := time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond).UTC()
		return &t
	}

	BeforeEach(func() {
		logger = &logging.BufferedLogger{}
	})

	Describe("func Apply()", func() {
		It("splits the total duration at the claim", func() {
			s := &TaskState{
				TaskID:    "<task>",
				StartDate: at(100),
				EndDate:   at(300),
			}

			s.Apply(
				[]Entry{
					{
						ID:        "op-1",
						TaskID:    "<task>",
						Timestamp: *at(150),
						Kind:      Add,
						Category:  Assignee,
						Subject:   "alice",
					},
				},
				logger,
			)

			Expect(*s.TotalDurationInMillis).To(BeEquivalentTo(200))
			Expect(*s.IdleDurationInMillis).To(BeEquivalentTo(50))
			Expect(*s.WorkDurationInMillis).To(BeEquivalentTo(150))
			Expect(*s.Assignee).To(Equal("alice"))
		})

		It("counts the entire duration as work when the task was never claimed", func() {
			s := &TaskState{
				TaskID:    "<task>",
				StartDate: at(100),
				EndDate:   at(300),
			}

			s.Apply(nil, logger)

			Expect(*s.TotalDurationInMillis).To(BeEquivalentTo(200))
			Expect(*s.IdleDurationInMillis).To(BeEquivalentTo(0))
			Expect(*s.WorkDurationInMillis).To(BeEquivalentTo(200))
		})

		It("leaves the durations unset while the task is still running", func() {
			s := &TaskState{
				TaskID:    "<task>",
				StartDate: at(100),
			}

			s.Apply(nil, logger)

			Expect(s.TotalDurationInMillis).To(BeNil())
			Expect(s.IdleDurationInMillis).To(BeNil())
			Expect(s.WorkDurationInMillis).To(BeNil())
		})

		It("reports the idle duration of a claimed task that has not ended", func() {
			s := &TaskState{
				TaskID:    "<task>",
				StartDate: at(100),
			}

			s.Apply(
				[]Entry{
					{
						ID:        "op-1",
						TaskID:    "<task>",
						Timestamp: *at(150),
						Kind:      Add,
						Category:  Assignee,
						Subject:   "alice",
					},
				},
				logger,
			)

			Expect(s.TotalDurationInMillis).To(BeNil())
			Expect(*s.IdleDurationInMillis).To(BeEquivalentTo(50))
			Expect(s.WorkDurationInMillis).To(BeNil())
		})

		It("uses the earliest claim when the task was reassigned", func() {
			s := &TaskState{
				TaskID:    "<task>",
				StartDate: at(100),
				EndDate:   at(500),
			}

			s.Apply(
				[]Entry{
					{
						ID:        "op-2",
						TaskID:    "<task>",
						Timestamp: *at(400),
						Kind:      Add,
						Category:  Assignee,
						Subject:   "bob",
					},
					{
						ID:        "op-1",
						TaskID:    "<task>",
						Timestamp: *at(200),
						Kind:      Add,
						Category:  Assignee,
						Subject:   "alice",
					},
				},
				logger,
			)

			Expect(*s.IdleDurationInMillis).To(BeEquivalentTo(100))
			Expect(*s.WorkDurationInMillis).To(BeEquivalentTo(100))
			Expect(*s.Assignee).To(Equal("bob"))
		})
	})

	Describe("func Absorb()", func() {
		It("fills unset fields and overwrites dates with incoming values", func() {
			s := &TaskState{
				TaskID:    "<task>",
				StartDate: at(100),
			}

			s.Absorb(TaskState{
				ProcessInstanceID: "<instance>",
				StartDate:         at(50),
				EndDate:           at(300),
			})

			Expect(s.ProcessInstanceID).To(Equal("<instance>"))
			Expect(s.StartDate).To(Equal(at(50)))
			Expect(s.EndDate).To(Equal(at(300)))
		})
	})
})
