// Package inspect builds protobuf Struct documents describing the state of
// a dashboard. The same documents back the JSON views served over HTTP and
// the gRPC inspection service.
package inspect

import (
	"time"

	"github.com/nixpig/jobdash/internal/jobdesc"
	"github.com/nixpig/jobdash/internal/jobmanager"
	"github.com/nixpig/jobdash/internal/jobmanager/result"
	"github.com/nixpig/jobdash/internal/view"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Job describes a job instance.
func Job(s *jobmanager.JobStatus) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":       structpb.NewNumberValue(float64(s.ID)),
		"name":     structpb.NewStringValue(s.Name),
		"args":     stringList(s.Args),
		"started":  structpb.NewStringValue(s.Started.UTC().Format(time.RFC3339Nano)),
		"state":    structpb.NewStringValue(s.State.String()),
		"finished": structpb.NewBoolValue(s.Finished),
		"stopped":  structpb.NewBoolValue(s.Stopped),
	}}
}

// JobWithResult describes a job instance along with its latest snapshot.
func JobWithResult(s *jobmanager.JobStatus, snap result.Snapshot) *structpb.Struct {
	doc := Job(s)

	doc.Fields["result"] = structpb.NewStringValue(string(snap.Content))

	if !snap.PublishedAt.IsZero() {
		doc.Fields["published_at"] = structpb.NewStringValue(
			snap.PublishedAt.UTC().Format(time.RFC3339Nano),
		)
	}

	return doc
}

// Jobs describes every job instance.
func Jobs(statuses []*jobmanager.JobStatus) *structpb.Struct {
	values := make([]*structpb.Value, len(statuses))

	for i, s := range statuses {
		values[i] = structpb.NewStructValue(Job(s))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"jobs": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// Started describes a freshly started asynchronous job.
func Started(id uint64, name string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":   structpb.NewNumberValue(float64(id)),
		"name": structpb.NewStringValue(name),
	}}
}

// Completed describes the outcome of a synchronous job. err is reported
// alongside whatever the job published before failing.
func Completed(name string, snap result.Snapshot, err error) *structpb.Struct {
	var errs []string
	if err != nil {
		errs = append(errs, err.Error())
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":   structpb.NewStringValue(name),
		"result": structpb.NewStringValue(string(snap.Content)),
		"errors": stringList(errs),
	}}
}

// Descriptor describes a kind of job.
func Descriptor(d *jobdesc.Descriptor) *structpb.Struct {
	args := make([]*structpb.Value, len(d.Args))

	for i, a := range d.Args {
		args[i] = structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"name":        structpb.NewStringValue(a.Name),
				"type":        structpb.NewStringValue(a.Type),
				"description": structpb.NewStringValue(a.Description),
			},
		})
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":        structpb.NewStringValue(d.Name),
		"url":         structpb.NewStringValue(d.URL),
		"description": structpb.NewStringValue(d.Description),
		"synchronous": structpb.NewBoolValue(d.Synchronous),
		"reentrant":   structpb.NewBoolValue(d.Reentrant),
		"args":        structpb.NewListValue(&structpb.ListValue{Values: args}),
	}}
}

// Routes describes the route table and the job descriptors.
func Routes(routes []view.Route, descriptors []*jobdesc.Descriptor) *structpb.Struct {
	rs := make([]*structpb.Value, len(routes))

	for i, r := range routes {
		rs[i] = structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"url":  structpb.NewStringValue(r.URL),
				"kind": structpb.NewStringValue(r.Kind),
			},
		})
	}

	ds := make([]*structpb.Value, len(descriptors))

	for i, d := range descriptors {
		ds[i] = structpb.NewStructValue(Descriptor(d))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"routes": structpb.NewListValue(&structpb.ListValue{Values: rs}),
		"jobs":   structpb.NewListValue(&structpb.ListValue{Values: ds}),
	}}
}

// Status describes the status variables.
func Status(vars []view.StatusVar) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(vars))

	for _, v := range vars {
		fields[v.Name] = structpb.NewStringValue(v.Value)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStructValue(&structpb.Struct{Fields: fields}),
	}}
}

// Errors describes validation errors.
func Errors(msgs []string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"errors": stringList(msgs),
	}}
}

// MarshalJSON encodes msg as JSON.
func MarshalJSON(msg proto.Message) (string, error) {
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(msg)
	if err != nil {
		return "", err
	}

	return string(b) + "\n", nil
}

func stringList(ss []string) *structpb.Value {
	values := make([]*structpb.Value, len(ss))

	for i, s := range ss {
		values[i] = structpb.NewStringValue(s)
	}

	return structpb.NewListValue(&structpb.ListValue{Values: values})
}
