//go:build integration

package integration

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/zenguard/internal/daemon"
	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
	"github.com/eliteGoblin/focusd/zenguard/internal/friction"
	"github.com/eliteGoblin/focusd/zenguard/internal/infra"
	"github.com/eliteGoblin/focusd/zenguard/internal/policy"
	"github.com/eliteGoblin/focusd/zenguard/internal/usecase"
)

var _ = Describe("Intervention engine on the encrypted store", func() {
	var (
		tmpDir    string
		store     *infra.Store
		clock     *stepClock
		presenter *autoPresenter
		notifier  *countingNotifier
		sessions  *usecase.SessionService
		engine    *usecase.Engine
		ctx       context.Context
		cancel    context.CancelFunc
		canDraw   overlay
	)

	classify := func(id string, class domain.Classification) {
		Expect(store.Categories().Upsert(ctx, domain.AppClassification{ID: id, Class: class})).To(Succeed())
	}

	// evaluate steps past the debounce window before each event.
	evaluate := func(appID, windowClass string) domain.Outcome {
		clock.Advance(time.Second)
		return engine.Evaluate(ctx, appID, windowClass)
	}

	hasGrant := func(appID string) func() bool {
		return func() bool {
			ok, err := sessions.HasActive(ctx, appID)
			return err == nil && ok
		}
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "zenguard-integration-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenDataStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel = context.WithCancel(context.Background())
		clock = newStepClock()
		presenter = &autoPresenter{reason: "reply to a work message", minutes: 15}
		notifier = &countingNotifier{}
		canDraw = true
	})

	JustBeforeEach(func() {
		logger := zap.NewNop()
		sessions = usecase.NewSessionService(store.Sessions(), store.History(), clock, logger)
		engine = usecase.NewEngine(usecase.DefaultEngineConfig(), usecase.EngineDeps{
			Categories: store.Categories(),
			Schedules:  store.Schedules(),
			Settings:   store,
			Sessions:   sessions,
			Ignore:     policy.NewConfiguredRegistry(policy.DefaultSelfID, nil),
			Guard:      policy.NewSettingsGuard(policy.DefaultSettingsID, []string{"Accessibility"}),
			Friction:   friction.NewDefault(),
			Presenter:  presenter,
			Overlay:    canDraw,
			Notifier:   notifier,
			Clock:      clock,
		}, logger)
		Expect(engine.Start(ctx)).To(Succeed())
	})

	AfterEach(func() {
		cancel()
		engine.Wait()
		Expect(store.Close()).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	Describe("classified apps", func() {
		It("lets unclassified apps through", func() {
			Expect(evaluate("com.example.notes", "")).To(Equal(domain.OutcomeAllowed))
			Expect(presenter.Flows()).To(BeEmpty())
		})

		It("grants a soft app after the hold", func() {
			classify("com.example.video", domain.ClassSoft)
			Eventually(func() domain.Outcome {
				return evaluate("com.example.video", "")
			}).Should(Equal(domain.OutcomeSoftDispatched))

			Eventually(hasGrant("com.example.video")).Should(BeTrue())
			Eventually(engine.LockHeld).Should(BeFalse())
			Expect(evaluate("com.example.video", "")).To(Equal(domain.OutcomeSoftDispatched),
				"soft apps ask for the hold on every open")

			history, err := sessions.History(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(1))
			Expect(history[0].Kind).To(Equal(domain.GrantSoft))
			Expect(history[0].Reason).To(Equal(usecase.SoftGrantReason))
		})

		It("runs the full flow for a hard app and records the reason", func() {
			classify("com.example.social", domain.ClassHard)
			Eventually(func() domain.Outcome {
				return evaluate("com.example.social", "")
			}).Should(Equal(domain.OutcomeHardDispatched))

			Eventually(hasGrant("com.example.social")).Should(BeTrue())
			Expect(presenter.Errors()).To(BeEmpty())

			active, err := sessions.Active(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))
			Expect(active[0].DurationMinutes).To(Equal(15))
			Expect(active[0].Reason).To(Equal("reply to a work message"))

			analytics, err := sessions.Analytics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(analytics.TotalMindfulMinutes).To(Equal(15))
		})

		It("intercepts again once the grant expires", func() {
			classify("com.example.social", domain.ClassHard)
			Eventually(func() domain.Outcome {
				return evaluate("com.example.social", "")
			}).Should(Equal(domain.OutcomeHardDispatched))
			Eventually(hasGrant("com.example.social")).Should(BeTrue())
			Eventually(engine.LockHeld).Should(BeFalse())

			clock.Advance(16 * time.Minute)
			n, err := sessions.CleanupExpired(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			Expect(evaluate("com.example.social", "")).To(Equal(domain.OutcomeHardDispatched))
		})
	})

	Describe("focus schedules", func() {
		It("escalates a soft app while a window is active", func() {
			_, err := store.Schedules().Save(ctx, domain.Schedule{
				Name:      "Work",
				StartHour: 9,
				EndHour:   17,
				Enabled:   true,
				Days:      []int{1, 2, 3, 4, 5, 6, 7},
			})
			Expect(err).NotTo(HaveOccurred())
			classify("com.example.video", domain.ClassSoft)

			Eventually(func() domain.Outcome {
				return evaluate("com.example.video", "")
			}).Should(Equal(domain.OutcomeHardDispatched))
		})
	})

	Describe("settings protection", func() {
		It("guards sensitive settings screens", func() {
			Expect(evaluate(policy.DefaultSettingsID, "AccessibilitySettings")).To(Equal(domain.OutcomeSettingsGuarded))
		})

		It("lets everything through when protection is off", func() {
			classify("com.example.social", domain.ClassHard)
			Expect(engine.SetProtection(ctx, false)).To(Succeed())

			Consistently(func() domain.Outcome {
				return evaluate("com.example.social", "")
			}, 200*time.Millisecond).Should(Equal(domain.OutcomeAllowed))
		})
	})

	Describe("without overlay permission", func() {
		BeforeEach(func() {
			canDraw = false
		})

		It("falls back to a notification", func() {
			classify("com.example.social", domain.ClassHard)
			Eventually(func() domain.Outcome {
				return evaluate("com.example.social", "")
			}).Should(Equal(domain.OutcomeFallback))

			Eventually(notifier.Restricted).Should(ContainElement("com.example.social"))
			Expect(presenter.Flows()).To(BeEmpty())
			Expect(engine.LockHeld()).To(BeFalse())
		})
	})

	Describe("reboot", func() {
		It("drops grants from the previous boot", func() {
			hook := daemon.NewBootHook(store, sessions, engine, clock.BootID, zap.NewNop())
			first, err := hook.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(BeTrue())

			_, err = sessions.Grant(ctx, "com.example.social", 60, "call", domain.GrantHard)
			Expect(err).NotTo(HaveOccurred())

			again, err := hook.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeFalse(), "same boot is cleaned only once")
			Expect(hasGrant("com.example.social")()).To(BeTrue())

			clock.Reboot()
			Expect(hasGrant("com.example.social")()).To(BeFalse())

			cleaned, err := hook.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cleaned).To(BeTrue())

			all, err := store.Sessions().List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())

			today, err := sessions.TodayCount(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(today).To(Equal(1), "history survives the reboot")
		})
	})
})
