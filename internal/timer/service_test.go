package timer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestNextOccurrence(t *testing.T) {
	begin := date("2017-01-01T10:00:00Z")

	tests := []struct {
		name  string
		end   *time.Time
		every Every
		after time.Time
		want  time.Time
	}{
		{"once before begin", nil, Once, date("2017-01-01T09:00:00Z"), begin},
		{"once at begin", nil, Once, begin, time.Time{}},
		{"once after begin", nil, Once, date("2017-01-02T00:00:00Z"), time.Time{}},
		{"daily same day after", ptr(date("2017-01-10T23:59:59Z")), Daily, date("2017-01-01T11:00:00Z"), date("2017-01-02T10:00:00Z")},
		{"daily exactly on occurrence", ptr(date("2017-01-10T23:59:59Z")), Daily, date("2017-01-05T10:00:00Z"), date("2017-01-06T10:00:00Z")},
		{"daily past end", ptr(date("2017-01-03T23:59:59Z")), Daily, date("2017-01-03T11:00:00Z"), time.Time{}},
		{"daily last occurrence", ptr(date("2017-01-03T23:59:59Z")), Daily, date("2017-01-03T09:00:00Z"), date("2017-01-03T10:00:00Z")},
		{"weekly", ptr(date("2017-02-01T00:00:00Z")), Weekly, date("2017-01-02T00:00:00Z"), date("2017-01-08T10:00:00Z")},
		{"weekly unbounded far future", nil, Weekly, date("2018-01-01T00:00:00Z"), date("2018-01-07T10:00:00Z")},
		{"begin after end", ptr(date("2016-12-31T00:00:00Z")), Daily, date("2016-12-01T00:00:00Z"), time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(begin, tt.end, tt.every, tt.after)
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrence_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}
	begin := time.Date(2017, 3, 25, 10, 0, 0, 0, loc)
	got := NextOccurrence(begin, nil, Daily, begin)
	want := time.Date(2017, 3, 26, 10, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want %v", got, want)
	}
}

func TestAddJob_NoOccurrence(t *testing.T) {
	s := New(time.UTC)
	s.now = func() time.Time { return date("2017-01-02T00:00:00Z") }

	_, err := s.AddJob(date("2017-01-01T10:00:00Z"), nil, Once, nil)
	if !errors.Is(err, ErrNoOccurrence) {
		t.Fatalf("AddJob() error = %v, want ErrNoOccurrence", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestAddJob_AssignsDistinctIDs(t *testing.T) {
	s := New(time.UTC)
	future := time.Now().Add(time.Hour)

	a, err := s.AddJob(future, nil, Once, "a")
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	b, err := s.AddJob(future, nil, Once, "b")
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if a == 0 || b == 0 || a == b {
		t.Errorf("ids = %d, %d, want distinct non-zero", a, b)
	}

	s.RemoveJob(a)
	s.RemoveJob(a)
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestRemoveJob_DropsPendingFiring(t *testing.T) {
	s := New(time.UTC)
	id, err := s.AddJob(time.Now().Add(time.Hour), nil, Once, "payload")
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	s.RemoveJob(id)

	s.fire(id, "payload")

	select {
	case f := <-s.Fired():
		t.Fatalf("unexpected firing %+v", f)
	default:
	}
}

func TestService_Fires(t *testing.T) {
	s := New(time.UTC)
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	id, err := s.AddJob(time.Now().Add(50*time.Millisecond), nil, Once, "start")
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	select {
	case f := <-s.Fired():
		if f.ID != id {
			t.Errorf("Fired.ID = %d, want %d", f.ID, id)
		}
		if f.Payload != "start" {
			t.Errorf("Fired.Payload = %v, want start", f.Payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
}

func TestStop_Idempotent(t *testing.T) {
	s := New(nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on stopped service error = %v", err)
	}
	s.Start()
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
