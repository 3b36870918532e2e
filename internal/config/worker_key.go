package config

type WorkerKeyStruct struct {
	IntegrityEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	IntegrityEventsQueue: "persist_integrity_events_queue",
}
