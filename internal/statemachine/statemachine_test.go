package statemachine

import (
	"testing"
	"time"

	"github.com/archetype-labs/agent/internal/model"
	"github.com/stretchr/testify/require"
)

func TestNext_UndeployedToRunningDeploysAndStarts(t *testing.T) {
	next, action, ok := Next(model.StateUndeployed, model.DesiredRunning)
	require.True(t, ok)
	require.Equal(t, model.StateStarting, next)
	require.Equal(t, ActionDeployAndStart, action)
}

func TestNext_StoppedToRunningJustStarts(t *testing.T) {
	next, action, ok := Next(model.StateStopped, model.DesiredRunning)
	require.True(t, ok)
	require.Equal(t, model.StateStarting, next)
	require.Equal(t, ActionStart, action)
}

func TestNext_RunningToStopped(t *testing.T) {
	next, action, ok := Next(model.StateRunning, model.DesiredStopped)
	require.True(t, ok)
	require.Equal(t, model.StateStopping, next)
	require.Equal(t, ActionStop, action)
}

func TestNext_StartingToStoppedReverses(t *testing.T) {
	next, action, ok := Next(model.StateStarting, model.DesiredStopped)
	require.True(t, ok)
	require.Equal(t, model.StateStopping, next)
	require.Equal(t, ActionReverse, action)
}

func TestNext_NoTransitionWhenAlreadyMatchingIntent(t *testing.T) {
	_, _, ok := Next(model.StateRunning, model.DesiredRunning)
	require.False(t, ok)
}

func TestNext_UnknownActualStateNotOK(t *testing.T) {
	_, _, ok := Next(model.ActualState("bogus"), model.DesiredRunning)
	require.False(t, ok)
}

func TestIsTransitional(t *testing.T) {
	require.True(t, IsTransitional(model.StateStarting))
	require.True(t, IsTransitional(model.StateStopping))
	require.True(t, IsTransitional(model.StatePending))
	require.False(t, IsTransitional(model.StateRunning))
	require.False(t, IsTransitional(model.StateError))
}

func TestEscalator_ShouldEscalate(t *testing.T) {
	e := Escalator{
		StartingTimeout: 5 * time.Minute,
		StoppingTimeout: 2 * time.Minute,
		PendingTimeout:  1 * time.Minute,
	}

	require.True(t, e.ShouldEscalate(model.StateStarting, 6*time.Minute))
	require.False(t, e.ShouldEscalate(model.StateStarting, 4*time.Minute))
	require.False(t, e.ShouldEscalate(model.StateRunning, time.Hour))
}
