package config

type WorkerKeyStruct struct {
	MarkCodeUsedQueue string
}

var WorkerKey = &WorkerKeyStruct{
	MarkCodeUsedQueue: "mark_code_used_queue",
}
