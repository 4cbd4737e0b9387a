/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package rollout observes a deployment rollout until it reaches a terminal
// state. The state machine is:
//
//	Pending → Progressing → {Available | Failed | TimedOut}
//
// Available requires the observed ready-replica count to equal the desired
// count for the current generation. Failed surfaces pod-level crash loops
// and image pull errors. TimedOut means neither terminal state was reached
// within the wait bound; it is reported as a warning because the cluster
// may still converge after the pipeline exits.
package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"github.com/chatdocs/shipit/pkg/defaults"
	apperrors "github.com/chatdocs/shipit/pkg/errors"
	"github.com/chatdocs/shipit/pkg/waitfor"
)

// State is the observed rollout state.
type State string

const (
	StatePending     State = "Pending"
	StateProgressing State = "Progressing"
	StateAvailable   State = "Available"
	StateFailed      State = "Failed"
	StateTimedOut    State = "TimedOut"
)

// Terminal reports whether the state ends the wait.
func (s State) Terminal() bool {
	return s == StateAvailable || s == StateFailed || s == StateTimedOut
}

// fatalWaitingReasons are container waiting reasons that mean the rollout
// cannot make progress without intervention.
var fatalWaitingReasons = map[string]bool{
	"CrashLoopBackOff": true,
	"ErrImagePull":     true,
	"ImagePullBackOff": true,
}

// Watcher waits for one deployment's rollout.
type Watcher struct {
	clientset kubernetes.Interface
	namespace string
	name      string

	// Interval and Attempts bound the wait; NewWatcher sets the defaults.
	Interval time.Duration
	Attempts int
}

// NewWatcher creates a Watcher for the named deployment with the default
// wait bound.
func NewWatcher(clientset kubernetes.Interface, namespace, name string) *Watcher {
	return &Watcher{
		clientset: clientset,
		namespace: namespace,
		name:      name,
		Interval:  defaults.RolloutInterval,
		Attempts:  defaults.RolloutAttempts,
	}
}

// Wait polls until the rollout reaches a terminal state or the bound is
// exhausted. It returns StateFailed with an error describing the failure;
// StateTimedOut is returned with a nil error, since the pipeline treats it
// as a warning.
func (w *Watcher) Wait(ctx context.Context) (State, error) {
	var last State = StatePending

	cond := waitfor.Condition{
		Description: fmt.Sprintf("rollout of deployment %s/%s", w.namespace, w.name),
		Interval:    w.Interval,
		Attempts:    w.Attempts,
		OnTimeout:   waitfor.Warn,
	}

	var failure error
	err := cond.Wait(ctx, func(ctx context.Context) (bool, error) {
		state, err := w.Observe(ctx)
		if err != nil {
			return false, err
		}
		if state != last {
			slog.Info("rollout state changed", "deployment", w.name, "state", string(state))
			last = state
		}
		if state == StateFailed {
			failure = apperrors.New(apperrors.ErrCodeApply,
				fmt.Sprintf("rollout of %s/%s failed", w.namespace, w.name))
			return true, nil
		}
		return state == StateAvailable, nil
	})
	if err != nil {
		return last, err
	}
	if failure != nil {
		return StateFailed, failure
	}
	if last != StateAvailable {
		return StateTimedOut, nil
	}
	return StateAvailable, nil
}

// Observe returns the current rollout state without waiting.
func (w *Watcher) Observe(ctx context.Context) (State, error) {
	deploy, err := w.clientset.AppsV1().Deployments(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
	if err != nil {
		return StatePending, apperrors.Wrap(apperrors.ErrCodeApply,
			"failed to get deployment "+w.name, err)
	}

	if failed, reason := progressDeadlineExceeded(deploy); failed {
		slog.Error("rollout failed", "deployment", w.name, "reason", reason)
		return StateFailed, nil
	}

	if reason, msg, failed := w.podFailure(ctx, deploy); failed {
		slog.Error("rollout failed", "deployment", w.name, "reason", reason, "message", msg)
		return StateFailed, nil
	}

	desired := int32(1)
	if deploy.Spec.Replicas != nil {
		desired = *deploy.Spec.Replicas
	}

	if deploy.Status.ObservedGeneration < deploy.Generation {
		return StatePending, nil
	}
	if deploy.Status.ReadyReplicas == desired && deploy.Status.UpdatedReplicas == desired {
		return StateAvailable, nil
	}
	if deploy.Status.UpdatedReplicas > 0 || deploy.Status.ReadyReplicas > 0 {
		return StateProgressing, nil
	}
	return StatePending, nil
}

// progressDeadlineExceeded checks the deployment's own progress condition.
func progressDeadlineExceeded(deploy *appsv1.Deployment) (bool, string) {
	for _, cond := range deploy.Status.Conditions {
		if cond.Type == appsv1.DeploymentProgressing &&
			cond.Status == corev1.ConditionFalse &&
			cond.Reason == "ProgressDeadlineExceeded" {
			return true, cond.Message
		}
	}
	return false, ""
}

// podFailure inspects the deployment's pods for fatal container states.
func (w *Watcher) podFailure(ctx context.Context, deploy *appsv1.Deployment) (reason, message string, failed bool) {
	selector := labels.Set(deploy.Spec.Selector.MatchLabels).String()
	pods, err := w.clientset.CoreV1().Pods(w.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		// Pod inspection is advisory; the deployment status check decides.
		return "", "", false
	}

	for _, pod := range pods.Items {
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting != nil && fatalWaitingReasons[cs.State.Waiting.Reason] {
				return cs.State.Waiting.Reason, cs.State.Waiting.Message, true
			}
		}
	}
	return "", "", false
}
