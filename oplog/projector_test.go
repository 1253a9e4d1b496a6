package oplog_test

import (
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/retrospect/oplog"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("func Project()", func() {
	var logger *logging.BufferedLogger

	at := func(ms int) time.Time {
		return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond).UTC()
	}

	entry := func(id string, ms int, k Kind, c Category, subject string) Entry {
		return Entry{
			ID:            id,
			TaskID:        "<task>",
			DefinitionKey: "<definition>",
			Timestamp:     at(ms),
			Kind:          k,
			Category:      c,
			Subject:       subject,
		}
	}

	BeforeEach(func() {
		logger = &logging.BufferedLogger{}
	})

	It("folds assignment operations in timestamp order", func() {
		log, assignee, groups := Project(
			nil,
			[]Entry{
				entry("op-3", 300, Delete, Assignee, "alice"),
				entry("op-1", 100, Add, Assignee, "alice"),
				entry("op-2", 200, Add, CandidateGroup, "g2"),
				entry("op-4", 50, Add, CandidateGroup, "g1"),
				entry("op-5", 250, Delete, CandidateGroup, "g1"),
			},
			logger,
		)

		Expect(log).To(HaveLen(5))
		Expect(log[0].ID).To(Equal("op-4"))
		Expect(assignee).To(BeNil())
		Expect(groups).To(Equal([]string{"g2"}))
	})

	It("keeps the last assignment as the assignee", func() {
		_, assignee, _ := Project(
			nil,
			[]Entry{
				entry("op-1", 100, Add, Assignee, "alice"),
				entry("op-2", 200, Delete, Assignee, "alice"),
				entry("op-3", 300, Add, Assignee, "bob"),
			},
			logger,
		)

		Expect(assignee).NotTo(BeNil())
		Expect(*assignee).To(Equal("bob"))
	})

	It("deduplicates entries by ID, first occurrence winning", func() {
		existing := []Entry{
			entry("op-1", 100, Add, Assignee, "alice"),
		}

		redelivered := entry("op-1", 100, Add, Assignee, "alice")
		redelivered.Subject = "mallory"

		log, assignee, _ := Project(
			existing,
			[]Entry{redelivered},
			logger,
		)

		Expect(log).To(HaveLen(1))
		Expect(*assignee).To(Equal("alice"))
	})

	It("is idempotent under redelivery of the same batch", func() {
		batch := []Entry{
			entry("op-1", 100, Add, Assignee, "alice"),
			entry("op-2", 200, Add, CandidateGroup, "g1"),
		}

		once, _, _ := Project(nil, batch, logger)
		twice, assignee, groups := Project(once, batch, logger)

		Expect(twice).To(Equal(once))
		Expect(*assignee).To(Equal("alice"))
		Expect(groups).To(Equal([]string{"g1"}))
	})

	It("orders entries with equal timestamps by ID", func() {
		log, _, _ := Project(
			nil,
			[]Entry{
				entry("op-b", 100, Add, CandidateGroup, "g1"),
				entry("op-a", 100, Add, CandidateGroup, "g2"),
			},
			logger,
		)

		Expect(log[0].ID).To(Equal("op-a"))
		Expect(log[1].ID).To(Equal("op-b"))
	})

	It("skips and logs entries of unknown kind", func() {
		log, _, _ := Project(
			nil,
			[]Entry{
				entry("op-1", 100, Add, Assignee, "alice"),
				entry("op-2", 200, Kind("SUSPEND"), Assignee, "alice"),
			},
			logger,
		)

		Expect(log).To(HaveLen(1))
		Expect(logger.Messages()).To(ContainElement(
			logging.BufferedLogMessage{
				Message: "skipping operation log entry op-2 with unrecognized kind 'SUSPEND' / category 'assignee'",
			},
		))
	})
})
