package reaper_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/reaper"
	"github.com/seedboxsh/rssbox/store"
	"github.com/seedboxsh/rssbox/store/buntstore"
)

func TestReaper(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reaper Suite")
}

var _ = Describe("Reaper sweep", func() {
	var (
		s *buntstore.Store
		r *reaper.Reaper
	)

	BeforeEach(func() {
		var err error
		s, err = buntstore.Open("")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
	})

	insertWorker := func(id string, age time.Duration) {
		w := model.Worker{ID: id, LastHeartbeat: time.Now().Add(-age)}
		_, err := s.Insert(store.Workers, id, &w, "")
		Expect(err).NotTo(HaveOccurred())
	}
	insertAccount := func(a model.Account) {
		_, err := s.Insert(store.Accounts, a.ID, &a, "")
		Expect(err).NotTo(HaveOccurred())
	}
	insertDownload := func(d model.Download) {
		_, err := s.Insert(store.Downloads, d.ID, &d, "")
		Expect(err).NotTo(HaveOccurred())
	}
	getAccount := func(id string) model.Account {
		var a model.Account
		Expect(s.Get(store.Accounts, id, &a)).To(Succeed())
		return a
	}
	getDownload := func(id string) model.Download {
		var d model.Download
		Expect(s.Get(store.Downloads, id, &d)).To(Succeed())
		return d
	}

	Context("a dead worker's heartbeat record", func() {
		It("is removed once older than 2x the heartbeat interval", func() {
			insertWorker("crashed", time.Minute)
			r = reaper.New(s, 10*time.Second, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			var workers []model.Worker
			Expect(s.Find(store.Workers, nil, &workers)).To(Succeed())
			Expect(workers).To(BeEmpty())
		})

		It("leaves a fresh heartbeat alone", func() {
			insertWorker("alive", 0)
			r = reaper.New(s, time.Hour, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			var workers []model.Worker
			Expect(s.Find(store.Workers, nil, &workers)).To(Succeed())
			Expect(workers).To(HaveLen(1))
		})
	})

	Context("an account locked by a dead worker", func() {
		It("collapses PROCESSING to IDLE", func() {
			insertWorker("crashed", time.Minute)
			insertAccount(model.Account{ID: "a1", Status: model.AccountProcessing, LockedBy: "crashed"})
			r = reaper.New(s, 10*time.Second, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			got := getAccount("a1")
			Expect(got.Status).To(Equal(model.AccountIdle))
			Expect(got.LockedBy).To(BeEmpty())
		})

		It("collapses LOCKED and UPLOADING back to DOWNLOADING, not IDLE", func() {
			insertWorker("crashed", time.Minute)
			insertAccount(model.Account{ID: "a1", Status: model.AccountLocked, DownloadID: "d1", LockedBy: "crashed"})
			insertAccount(model.Account{ID: "a2", Status: model.AccountUploading, DownloadID: "d2", LockedBy: "crashed"})
			r = reaper.New(s, 10*time.Second, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			Expect(getAccount("a1").Status).To(Equal(model.AccountDownloading))
			Expect(getAccount("a1").DownloadID).To(Equal("d1"))
			Expect(getAccount("a2").Status).To(Equal(model.AccountDownloading))
		})

		It("leaves an account locked by a live worker untouched", func() {
			insertWorker("alive", 0)
			insertAccount(model.Account{ID: "a1", Status: model.AccountProcessing, LockedBy: "alive"})
			r = reaper.New(s, time.Hour, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			Expect(getAccount("a1").Status).To(Equal(model.AccountProcessing))
		})
	})

	Context("a download locked by a dead worker", func() {
		It("returns to PENDING with hash and lock cleared", func() {
			insertWorker("crashed", time.Minute)
			insertDownload(model.Download{ID: "d1", Status: model.DownloadProcessing, Hash: "ABCDEF", LockedBy: "crashed"})
			r = reaper.New(s, 10*time.Second, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			got := getDownload("d1")
			Expect(got.Status).To(Equal(model.DownloadPending))
			Expect(got.Hash).To(BeEmpty())
			Expect(got.LockedBy).To(BeEmpty())
		})
	})

	Context("a download orphaned between the two AttachDownload writes", func() {
		It("returns to PENDING even though no worker is dead", func() {
			insertDownload(model.Download{ID: "d1", Status: model.DownloadProcessing, Hash: "ABCDEF"})
			r = reaper.New(s, time.Hour, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			got := getDownload("d1")
			Expect(got.Status).To(Equal(model.DownloadPending))
			Expect(got.Hash).To(BeEmpty())
		})

		It("leaves a PROCESSING download alone when an account still owns it", func() {
			insertAccount(model.Account{ID: "a1", Status: model.AccountDownloading, DownloadID: "d1"})
			insertDownload(model.Download{ID: "d1", Status: model.DownloadProcessing, Hash: "ABCDEF"})
			r = reaper.New(s, time.Hour, time.Minute)

			Expect(r.Run(contextThatCancelsImmediately())).To(Succeed())

			Expect(getDownload("d1").Status).To(Equal(model.DownloadProcessing))
		})
	})
})
